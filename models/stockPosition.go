package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockPosition is the mutable quantity/cost state per (warehouse, product).
// Rows are created lazily on first mutation and never deleted. Every change
// goes through the stock ledger, which also appends an InventoryMovement in
// the same transaction; StockPosition.Quantity must always equal the sum of
// the ledger's qty_change for the key.
type StockPosition struct {
	ID          int             `gorm:"primary_key" json:"id"`
	WarehouseId int             `gorm:"uniqueIndex:idx_stock_position_wh_product,priority:1;not null" json:"warehouse_id"`
	ProductId   int             `gorm:"uniqueIndex:idx_stock_position_wh_product,priority:2;not null" json:"product_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	AverageCost decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"average_cost"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LockStockPosition fetches the position row under an exclusive lock,
// creating it when the key has never been touched. Must run inside a
// transaction; the lock is held until commit/rollback.
func LockStockPosition(tx *gorm.DB, warehouseId int, productId int) (*StockPosition, error) {
	position := StockPosition{
		WarehouseId: warehouseId,
		ProductId:   productId,
	}
	result := forUpdate(tx).
		Where("warehouse_id = ? AND product_id = ?", warehouseId, productId).
		FirstOrCreate(&position)
	if result.Error != nil {
		return nil, result.Error
	}
	return &position, nil
}

// GetStockPosition is a snapshot read; absent rows come back as a zero
// position rather than an error.
func GetStockPosition(tx *gorm.DB, warehouseId int, productId int) (*StockPosition, error) {
	var position StockPosition
	err := tx.Where("warehouse_id = ? AND product_id = ?", warehouseId, productId).First(&position).Error
	if err != nil {
		if IsRecordNotFound(err) {
			return &StockPosition{
				WarehouseId: warehouseId,
				ProductId:   productId,
				Quantity:    decimal.Zero,
				AverageCost: decimal.Zero,
			}, nil
		}
		return nil, err
	}
	return &position, nil
}

// WarehouseStateItem is one row of the warehouse overview.
type WarehouseStateItem struct {
	ProductId    int             `json:"product_id"`
	Name         string          `json:"name"`
	MaterialKind MaterialKind    `json:"material_kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	MinStock     decimal.Decimal `json:"min_stock"`
}

// GetWarehouseState lists positions of a warehouse joined with product
// identity, grouped by material kind for the production floor overview.
func GetWarehouseState(ctx context.Context, db *gorm.DB, warehouseId int) (map[MaterialKind][]WarehouseStateItem, error) {
	var items []WarehouseStateItem
	err := db.WithContext(ctx).Model(&StockPosition{}).
		Select("stock_positions.product_id, products.name, products.material_kind, stock_positions.quantity, stock_positions.average_cost, products.min_stock").
		Joins("JOIN products ON products.id = stock_positions.product_id").
		Where("stock_positions.warehouse_id = ?", warehouseId).
		Order("products.name").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}

	out := make(map[MaterialKind][]WarehouseStateItem)
	for _, item := range items {
		out[item.MaterialKind] = append(out[item.MaterialKind], item)
	}
	return out, nil
}
