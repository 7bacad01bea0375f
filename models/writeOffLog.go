package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WriteOffLog records the authorization context of a manual write-off.
// Always paired 1:1 with an InventoryMovement of type WO, written in the
// same transaction.
type WriteOffLog struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Ts            time.Time       `gorm:"not null" json:"ts"`
	WarehouseId   int             `gorm:"index;not null" json:"warehouse_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Reason        WriteOffReason  `gorm:"size:20;not null" json:"reason"`
	ReasonText    string          `gorm:"size:255" json:"reason_text"`
	Actor         string          `gorm:"size:100;not null" json:"actor"`
	SignatureText string          `gorm:"size:255" json:"signature_text"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
