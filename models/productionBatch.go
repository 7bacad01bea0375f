package models

import (
	"context"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductionBatch is one production run. Rows are never deleted; the trace
// note keeps any ingredient overrides applied at start, with their author.
type ProductionBatch struct {
	ID                  int                 `gorm:"primary_key" json:"id"`
	ProductId           int                 `gorm:"index;not null" json:"product_id"`
	ProductionDate      time.Time           `gorm:"not null" json:"production_date"`
	PlannedQty          decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"planned_qty"`
	ActualQty           decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"actual_qty"`
	Status              BatchStatus         `gorm:"size:40;not null;index" json:"status"`
	TotalIngredientCost decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"total_ingredient_cost"`
	TraceNote           string              `gorm:"type:text" json:"trace_note"`
	StartedAt           *time.Time          `json:"started_at"`
	FinishedAt          *time.Time          `json:"finished_at"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetProductionBatch(ctx context.Context, db *gorm.DB, id int) (*ProductionBatch, error) {
	var batch ProductionBatch
	err := db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, utils.NewNotFoundError("production batch", id)
		}
		return nil, err
	}
	return &batch, nil
}

// LockProductionBatch fetches the batch row under an exclusive lock for a
// state transition. Must run inside a transaction.
func LockProductionBatch(tx *gorm.DB, id int) (*ProductionBatch, error) {
	var batch ProductionBatch
	err := forUpdate(tx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, utils.NewNotFoundError("production batch", id)
		}
		return nil, err
	}
	return &batch, nil
}

// BatchListItem is the batch board row: batch plus product identity.
type BatchListItem struct {
	ID             int                 `json:"id"`
	ProductId      int                 `json:"product_id"`
	ProductName    string              `json:"product_name"`
	ProductionDate time.Time           `json:"production_date"`
	PlannedQty     decimal.Decimal     `json:"planned_qty"`
	ActualQty      decimal.NullDecimal `json:"actual_qty"`
	Status         BatchStatus         `json:"status"`
}

func ListProductionBatches(ctx context.Context, db *gorm.DB, status *BatchStatus) ([]BatchListItem, error) {
	dbCtx := db.WithContext(ctx).Model(&ProductionBatch{}).
		Select("production_batches.id, production_batches.product_id, products.name AS product_name, production_batches.production_date, production_batches.planned_qty, production_batches.actual_qty, production_batches.status").
		Joins("JOIN products ON products.id = production_batches.product_id")
	if status != nil {
		dbCtx = dbCtx.Where("production_batches.status = ?", *status)
	}

	var items []BatchListItem
	if err := dbCtx.Order("production_batches.production_date, products.name").Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
