package reports

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
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

func seedMovements(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(context.Background(), db, &models.NewProduct{Name: "Pork"})
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, qty := range []string{"100", "-30"} {
		movementType := models.MovementTypeReceipt
		if i == 1 {
			movementType = models.MovementTypeProductionIssue
		}
		require.NoError(t, db.Create(&models.InventoryMovement{
			Ts:           base.Add(time.Duration(i) * time.Hour),
			WarehouseId:  1,
			ProductId:    product.ID,
			QtyChange:    decimal.RequireFromString(qty),
			UnitCost:     decimal.RequireFromString("2"),
			MovementType: movementType,
			Note:         "seed",
		}).Error)
	}
	return product
}

func TestGetStockMovementReport(t *testing.T) {
	db := newTestDB(t)
	product := seedMovements(t, db)

	rows, err := GetStockMovementReport(context.Background(), db, StockMovementReportQuery{
		WarehouseId: 1,
		ProductId:   product.ID,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Pork", rows[0].ProductName)
	assert.Equal(t, models.MovementTypeReceipt, rows[0].MovementType)
	assert.True(t, rows[1].QtyChange.Equal(decimal.RequireFromString("-30")))
}

func TestExportStockMovementXlsx(t *testing.T) {
	db := newTestDB(t)
	product := seedMovements(t, db)

	var buf bytes.Buffer
	err := ExportStockMovementXlsx(context.Background(), db, StockMovementReportQuery{
		WarehouseId: 1,
		ProductId:   product.ID,
	}, &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Movements")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two movements")
	assert.Equal(t, "Product", rows[0][3])
	assert.Equal(t, "Pork", rows[1][3])
	assert.Equal(t, "RC", rows[1][6])
	assert.Equal(t, "-30", rows[2][4])
}
