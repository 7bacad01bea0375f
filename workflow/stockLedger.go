package workflow

import (
	"context"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/config"
	"bitbucket.org/lahodne/vyroba_backend/models"
	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// applyStockDelta locks the position row and applies the quantity change.
// A positive delta with a unit cost recomputes the weighted average:
//
//	new_avg = (old_qty*old_avg + delta*unit_cost) / new_qty
//
// Negative deltas never touch the average. Must run inside a transaction;
// the returned position carries the new values.
func applyStockDelta(tx *gorm.DB, warehouseId int, productId int, delta decimal.Decimal, unitCost *decimal.Decimal, allowNegative bool) (*models.StockPosition, bool, error) {
	position, err := models.LockStockPosition(tx, warehouseId, productId)
	if err != nil {
		return nil, false, err
	}

	newQty := utils.RoundQty(position.Quantity.Add(delta))
	if newQty.IsNegative() && !allowNegative {
		return nil, false, &utils.InsufficientStockError{
			WarehouseId: warehouseId,
			ProductId:   productId,
			Requested:   delta.Neg(),
			Available:   position.Quantity,
		}
	}

	newAvg := position.AverageCost
	if delta.IsPositive() && unitCost != nil && newQty.IsPositive() {
		newAvg = utils.RoundCost(
			position.Quantity.Mul(position.AverageCost).
				Add(delta.Mul(*unitCost)).
				Div(newQty))
	}

	err = tx.Model(&models.StockPosition{}).
		Where("id = ?", position.ID).
		Updates(map[string]interface{}{
			"quantity":     newQty,
			"average_cost": newAvg,
		}).Error
	if err != nil {
		return nil, false, err
	}

	position.Quantity = newQty
	position.AverageCost = newAvg
	return position, newQty.IsNegative(), nil
}

func recordMovement(tx *gorm.DB, movement *models.InventoryMovement) error {
	if movement.Ts.IsZero() {
		movement.Ts = time.Now()
	}
	movement.Note = utils.Truncate(movement.Note, 255)
	return tx.Create(movement).Error
}

// issueStockTx decrements a position and appends the matching outgoing
// movement. The movement is priced at the position's average cost read
// under the row lock, not at any earlier estimate.
func issueStockTx(tx *gorm.DB, warehouseId int, productId int, qty decimal.Decimal, movementType models.MovementType, refTable string, refId int, transferRef string, note string, allowNegative bool) (*models.StockPosition, bool, error) {
	position, wentNegative, err := applyStockDelta(tx, warehouseId, productId, qty.Neg(), nil, allowNegative)
	if err != nil {
		return nil, false, err
	}
	movement := models.InventoryMovement{
		WarehouseId:  warehouseId,
		ProductId:    productId,
		QtyChange:    utils.RoundQty(qty).Neg(),
		UnitCost:     position.AverageCost,
		MovementType: movementType,
		RefTable:     refTable,
		RefId:        refId,
		TransferRef:  transferRef,
		Note:         note,
	}
	if err := recordMovement(tx, &movement); err != nil {
		return nil, false, err
	}
	return position, wentNegative, nil
}

// receiveStockTx increments a position at the given unit cost and appends
// the matching incoming movement.
func receiveStockTx(tx *gorm.DB, warehouseId int, productId int, qty decimal.Decimal, unitCost decimal.Decimal, movementType models.MovementType, refTable string, refId int, transferRef string, note string) (*models.StockPosition, error) {
	cost := utils.RoundCost(unitCost)
	position, _, err := applyStockDelta(tx, warehouseId, productId, utils.RoundQty(qty), &cost, true)
	if err != nil {
		return nil, err
	}
	movement := models.InventoryMovement{
		WarehouseId:  warehouseId,
		ProductId:    productId,
		QtyChange:    utils.RoundQty(qty),
		UnitCost:     cost,
		MovementType: movementType,
		RefTable:     refTable,
		RefId:        refId,
		TransferRef:  transferRef,
		Note:         note,
	}
	if err := recordMovement(tx, &movement); err != nil {
		return nil, err
	}
	return position, nil
}

func (e *Engine) validateStockKey(ctx context.Context, warehouseId int, productId int) error {
	if _, err := models.GetWarehouse(ctx, e.db, warehouseId); err != nil {
		return err
	}
	if _, err := models.GetProduct(ctx, e.db, productId); err != nil {
		return err
	}
	return nil
}

type ReceiveStockInput struct {
	WarehouseId int             `json:"warehouse_id" binding:"required"`
	ProductId   int             `json:"product_id" binding:"required"`
	Qty         decimal.Decimal `json:"qty" binding:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Note        string          `json:"note"`
}

type ReceiveStockResult struct {
	NewQty         decimal.Decimal `json:"new_qty"`
	NewAverageCost decimal.Decimal `json:"new_avg_cost"`
}

func (e *Engine) ReceiveStock(ctx context.Context, input *ReceiveStockInput) (*ReceiveStockResult, error) {
	if !input.Qty.IsPositive() {
		return nil, utils.NewValidationError("qty", "must be positive")
	}
	if input.UnitCost.IsNegative() {
		return nil, utils.NewValidationError("unit_cost", "must not be negative")
	}
	if err := e.validateStockKey(ctx, input.WarehouseId, input.ProductId); err != nil {
		return nil, err
	}

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	position, err := receiveStockTx(tx, input.WarehouseId, input.ProductId, input.Qty, input.UnitCost,
		models.MovementTypeReceipt, "", 0, "", input.Note)
	if err != nil {
		tx.Rollback()
		config.LogErrorCtx(ctx, e.logger, "stockLedger.go", "ReceiveStock", "receiveStockTx", input, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &ReceiveStockResult{
		NewQty:         position.Quantity,
		NewAverageCost: position.AverageCost,
	}, nil
}

type IssueStockInput struct {
	WarehouseId   int             `json:"warehouse_id" binding:"required"`
	ProductId     int             `json:"product_id" binding:"required"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
	AllowNegative bool            `json:"allow_negative"`
	Note          string          `json:"note"`
}

type IssueStockResult struct {
	NewQty       decimal.Decimal `json:"new_qty"`
	WentNegative bool            `json:"went_negative"`
}

func (e *Engine) IssueStock(ctx context.Context, input *IssueStockInput) (*IssueStockResult, error) {
	if !input.Qty.IsPositive() {
		return nil, utils.NewValidationError("qty", "must be positive")
	}
	if err := e.validateStockKey(ctx, input.WarehouseId, input.ProductId); err != nil {
		return nil, err
	}

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	position, wentNegative, err := issueStockTx(tx, input.WarehouseId, input.ProductId, input.Qty,
		models.MovementTypeProductionIssue, "", 0, "", input.Note, input.AllowNegative)
	if err != nil {
		tx.Rollback()
		if !utils.IsInsufficientStockError(err) {
			config.LogErrorCtx(ctx, e.logger, "stockLedger.go", "IssueStock", "issueStockTx", input, err)
		}
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &IssueStockResult{
		NewQty:       position.Quantity,
		WentNegative: wentNegative,
	}, nil
}

type WriteOffStockInput struct {
	WarehouseId   int                   `json:"warehouse_id" binding:"required"`
	ProductId     int                   `json:"product_id" binding:"required"`
	Qty           decimal.Decimal       `json:"qty" binding:"required"`
	Reason        models.WriteOffReason `json:"reason"`
	ReasonText    string                `json:"reason_text"`
	Actor         string                `json:"actor"`
	SignatureText string                `json:"signature_text"`
	AllowNegative bool                  `json:"allow_negative"`
}

type WriteOffStockResult struct {
	NewQty       decimal.Decimal `json:"new_qty"`
	WentNegative bool            `json:"went_negative"`
	WriteOffId   int             `json:"write_off_id"`
}

// WriteOffStock removes shrinkage from stock: WriteOffLog and WriteOff
// movement are written in the same transaction as the position change.
// When the input carries no actor, the one carried by the request
// context (x-actor header) is used.
func (e *Engine) WriteOffStock(ctx context.Context, input *WriteOffStockInput) (*WriteOffStockResult, error) {
	if !input.Qty.IsPositive() {
		return nil, utils.NewValidationError("qty", "must be positive")
	}
	if input.Actor == "" {
		input.Actor, _ = utils.GetActorFromContext(ctx)
	}
	if input.Actor == "" {
		return nil, utils.NewValidationError("actor", "required")
	}
	if input.Reason == "" {
		input.Reason = models.WriteOffReasonOther
	}
	if err := e.validateStockKey(ctx, input.WarehouseId, input.ProductId); err != nil {
		return nil, err
	}

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	position, wentNegative, err := applyStockDelta(tx, input.WarehouseId, input.ProductId, utils.RoundQty(input.Qty).Neg(), nil, input.AllowNegative)
	if err != nil {
		tx.Rollback()
		if !utils.IsInsufficientStockError(err) {
			config.LogErrorCtx(ctx, e.logger, "stockLedger.go", "WriteOffStock", "applyStockDelta", input, err)
		}
		return nil, err
	}

	log := models.WriteOffLog{
		Ts:            time.Now(),
		WarehouseId:   input.WarehouseId,
		ProductId:     input.ProductId,
		Qty:           utils.RoundQty(input.Qty),
		Reason:        input.Reason,
		ReasonText:    input.ReasonText,
		Actor:         input.Actor,
		SignatureText: input.SignatureText,
	}
	if err := tx.Create(&log).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	movement := models.InventoryMovement{
		WarehouseId:  input.WarehouseId,
		ProductId:    input.ProductId,
		QtyChange:    utils.RoundQty(input.Qty).Neg(),
		UnitCost:     position.AverageCost,
		MovementType: models.MovementTypeWriteOff,
		RefTable:     "write_off_logs",
		RefId:        log.ID,
		Note:         input.ReasonText,
	}
	if err := recordMovement(tx, &movement); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &WriteOffStockResult{
		NewQty:       position.Quantity,
		WentNegative: wentNegative,
		WriteOffId:   log.ID,
	}, nil
}

type AdjustStockInput struct {
	WarehouseId int             `json:"warehouse_id" binding:"required"`
	ProductId   int             `json:"product_id" binding:"required"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	Actor       string          `json:"actor"`
	Note        string          `json:"note"`
}

type AdjustStockResult struct {
	Delta  decimal.Decimal `json:"delta"`
	NewQty decimal.Decimal `json:"new_qty"`
}

// AdjustStock reconciles a physical count. The delta is applied at the
// existing average cost (counts never change the cost basis) and always
// leaves an Adjustment movement behind; quantities are never overwritten
// without a ledger trace.
func (e *Engine) AdjustStock(ctx context.Context, input *AdjustStockInput) (*AdjustStockResult, error) {
	if input.CountedQty.IsNegative() {
		return nil, utils.NewValidationError("counted_qty", "must not be negative")
	}
	if input.Actor == "" {
		input.Actor, _ = utils.GetActorFromContext(ctx)
	}
	if input.Actor == "" {
		return nil, utils.NewValidationError("actor", "required")
	}
	if err := e.validateStockKey(ctx, input.WarehouseId, input.ProductId); err != nil {
		return nil, err
	}

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	position, err := models.LockStockPosition(tx, input.WarehouseId, input.ProductId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	counted := utils.RoundQty(input.CountedQty)
	delta := counted.Sub(position.Quantity)
	if delta.IsZero() {
		tx.Rollback()
		return &AdjustStockResult{Delta: decimal.Zero, NewQty: position.Quantity}, nil
	}

	position, _, err = applyStockDelta(tx, input.WarehouseId, input.ProductId, delta, nil, true)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	note := "physical count by " + input.Actor
	if input.Note != "" {
		note += ": " + input.Note
	}
	movement := models.InventoryMovement{
		WarehouseId:  input.WarehouseId,
		ProductId:    input.ProductId,
		QtyChange:    delta,
		UnitCost:     position.AverageCost,
		MovementType: models.MovementTypeAdjustment,
		Note:         note,
	}
	if err := recordMovement(tx, &movement); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &AdjustStockResult{Delta: delta, NewQty: position.Quantity}, nil
}

// GetLedger reads one page of a position's movement ledger.
func (e *Engine) GetLedger(ctx context.Context, q models.LedgerQuery) ([]models.InventoryMovement, error) {
	return models.ListInventoryMovements(ctx, e.db, q)
}
