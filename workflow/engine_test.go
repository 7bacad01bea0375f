package workflow

import (
	"context"
	"fmt"
	"io"
	"testing"

	"bitbucket.org/lahodne/vyroba_backend/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.MigrateTables(db))
	return db
}

// newTestEngine seeds the two standard warehouses so the engine defaults
// (production=1, finished=2) line up with real rows.
func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx := context.Background()
	for _, name := range []string{"Production", "Finished Goods"} {
		_, err := models.CreateWarehouse(ctx, db, &models.NewWarehouse{Name: name})
		require.NoError(t, err)
	}
	return NewEngine(db, logger), db
}

func createTestProduct(t *testing.T, db *gorm.DB, name string, kind models.MaterialKind) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(context.Background(), db, &models.NewProduct{
		Name:         name,
		MaterialKind: kind,
	})
	require.NoError(t, err)
	return product
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustReceive(t *testing.T, e *Engine, warehouseId int, productId int, qty string, unitCost string) *ReceiveStockResult {
	t.Helper()
	result, err := e.ReceiveStock(context.Background(), &ReceiveStockInput{
		WarehouseId: warehouseId,
		ProductId:   productId,
		Qty:         dec(qty),
		UnitCost:    dec(unitCost),
	})
	require.NoError(t, err)
	return result
}

func setTestRecipe(t *testing.T, db *gorm.DB, productId int, items []models.NewRecipeItem) {
	t.Helper()
	_, err := models.SetRecipe(context.Background(), db, productId, items)
	require.NoError(t, err)
}
