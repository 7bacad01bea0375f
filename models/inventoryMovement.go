package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryMovement is the append-only audit ledger. Rows are written in
// the same transaction as the position change they describe and are never
// updated or deleted.
type InventoryMovement struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Ts           time.Time       `gorm:"index:idx_inv_move_wh_product_ts,priority:3;not null" json:"ts"`
	WarehouseId  int             `gorm:"index:idx_inv_move_wh_product_ts,priority:1;not null" json:"warehouse_id"`
	ProductId    int             `gorm:"index:idx_inv_move_wh_product_ts,priority:2;not null" json:"product_id"`
	QtyChange    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_change"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_cost"`
	MovementType MovementType    `gorm:"size:4;not null;index" json:"movement_type"`
	RefTable     string          `gorm:"size:40" json:"ref_table"`
	RefId        int             `gorm:"index" json:"ref_id"`
	TransferRef  string          `gorm:"size:36;index" json:"transfer_ref"`
	Note         string          `gorm:"size:255" json:"note"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type LedgerQuery struct {
	WarehouseId int        `json:"warehouse_id"`
	ProductId   int        `json:"product_id"`
	From        *time.Time `json:"from"`
	To          *time.Time `json:"to"`
	AfterId     int        `json:"after_id"`
	Limit       int        `json:"limit"`
}

const defaultLedgerPageSize = 200

// ListInventoryMovements reads one page of the ledger, keyset-paginated by
// id. Callers stream the full range by passing the last seen id back in.
func ListInventoryMovements(ctx context.Context, db *gorm.DB, q LedgerQuery) ([]InventoryMovement, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultLedgerPageSize
	}

	dbCtx := db.WithContext(ctx).
		Where("warehouse_id = ? AND product_id = ?", q.WarehouseId, q.ProductId)
	if q.From != nil {
		dbCtx = dbCtx.Where("ts >= ?", *q.From)
	}
	if q.To != nil {
		dbCtx = dbCtx.Where("ts < ?", *q.To)
	}
	if q.AfterId > 0 {
		dbCtx = dbCtx.Where("id > ?", q.AfterId)
	}

	var movements []InventoryMovement
	if err := dbCtx.Order("id").Limit(limit).Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// SumMovementQty totals the recorded quantity changes of a position key.
// The value must equal StockPosition.Quantity at all times.
func SumMovementQty(tx *gorm.DB, warehouseId int, productId int) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := tx.Model(&InventoryMovement{}).
		Select("COALESCE(SUM(qty_change), 0) AS total").
		Where("warehouse_id = ? AND product_id = ?", warehouseId, productId).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}
