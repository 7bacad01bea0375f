package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/config"
	"bitbucket.org/lahodne/vyroba_backend/models"
	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PlanBatchInput struct {
	ProductId      int             `json:"product_id" binding:"required"`
	ProductionDate time.Time       `json:"production_date" binding:"required"`
	PlannedQty     decimal.Decimal `json:"planned_qty" binding:"required"`
}

// PlanBatch records an intended production run without touching stock.
func (e *Engine) PlanBatch(ctx context.Context, input *PlanBatchInput) (*models.ProductionBatch, error) {
	if !input.PlannedQty.IsPositive() {
		return nil, utils.NewValidationError("planned_qty", "must be positive")
	}
	product, err := models.GetProduct(ctx, e.db, input.ProductId)
	if err != nil {
		return nil, err
	}
	lines, err := models.GetRecipeLines(e.db.WithContext(ctx), product.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &NoRecipeError{ProductId: product.ID}
	}

	batch := models.ProductionBatch{
		ProductId:      product.ID,
		ProductionDate: input.ProductionDate,
		PlannedQty:     utils.RoundQty(input.PlannedQty),
		Status:         models.BatchStatusPlanned,
	}
	if err := e.db.WithContext(ctx).Create(&batch).Error; err != nil {
		config.LogErrorCtx(ctx, e.logger, "productionWorkflow.go", "PlanBatch", "Create", input, err)
		return nil, err
	}
	return &batch, nil
}

type StartBatchInput struct {
	ProductId       int                  `json:"product_id"`
	ExistingBatchId int                  `json:"existing_batch_id"`
	ProductionDate  time.Time            `json:"production_date"`
	PlannedQty      decimal.Decimal      `json:"planned_qty"`
	Overrides       []IngredientOverride `json:"overrides"`
	Author          string               `json:"author"`
	ForceStart      bool                 `json:"force_start"`
}

// StartBatchResult carries either a confirmation demand (shortages listed,
// nothing mutated) or the started batch. WentNegative reports whether any
// material issue drove its position below zero.
type StartBatchResult struct {
	RequiresConfirmation bool                    `json:"requires_confirmation"`
	WentNegative         bool                    `json:"went_negative"`
	Shortages            []Shortage              `json:"shortages,omitempty"`
	Batch                *models.ProductionBatch `json:"batch,omitempty"`
	Requirements         []Requirement           `json:"requirements,omitempty"`
}

// StartBatch is the two-phase batch start. Phase one resolves the recipe
// with overrides and checks stock in the production warehouse; when any
// material is short and force_start is not set, it returns the shortage
// list without mutating anything. Phase two issues every material in one
// transaction, pricing each line at the average cost read under the row
// lock, and stamps the batch In Production with the actual total cost.
func (e *Engine) StartBatch(ctx context.Context, input *StartBatchInput) (*StartBatchResult, error) {
	productId := input.ProductId
	plannedQty := input.PlannedQty
	productionDate := input.ProductionDate

	var existing *models.ProductionBatch
	if input.ExistingBatchId > 0 {
		var err error
		existing, err = models.GetProductionBatch(ctx, e.db, input.ExistingBatchId)
		if err != nil {
			return nil, err
		}
		if existing.Status != models.BatchStatusPlanned {
			return nil, &utils.InvalidStateError{
				Resource: "production batch",
				ID:       existing.ID,
				State:    string(existing.Status),
				Action:   "start",
			}
		}
		productId = existing.ProductId
		if plannedQty.IsZero() {
			plannedQty = existing.PlannedQty
		}
		if productionDate.IsZero() {
			productionDate = existing.ProductionDate
		}
	}
	if productId == 0 {
		return nil, utils.NewValidationError("product_id", "required")
	}
	if productionDate.IsZero() {
		productionDate = time.Now()
	}

	if _, err := models.GetProduct(ctx, e.db, productId); err != nil {
		return nil, err
	}

	plan, err := resolveRequirements(e.db.WithContext(ctx), e.productionWarehouseId, productId, plannedQty, input.Overrides, input.Author)
	if err != nil {
		return nil, err
	}
	if len(plan.Shortages) > 0 && !input.ForceStart {
		return &StartBatchResult{
			RequiresConfirmation: true,
			Shortages:            plan.Shortages,
			Requirements:         plan.Requirements,
		}, nil
	}
	allowNegative := len(plan.Shortages) > 0 || input.ForceStart

	release := e.acquireBatchLock(ctx, productId)
	defer release()

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var batch *models.ProductionBatch
	if existing != nil {
		batch, err = models.LockProductionBatch(tx, existing.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if batch.Status != models.BatchStatusPlanned {
			tx.Rollback()
			return nil, &utils.InvalidStateError{
				Resource: "production batch",
				ID:       batch.ID,
				State:    string(batch.Status),
				Action:   "start",
			}
		}
	} else {
		batch = &models.ProductionBatch{
			ProductId:      productId,
			ProductionDate: productionDate,
			PlannedQty:     utils.RoundQty(plannedQty),
			Status:         models.BatchStatusPlanned,
		}
		if err := tx.Create(batch).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	totalCost := decimal.Zero
	wentNegative := false
	for _, req := range plan.Requirements {
		note := fmt.Sprintf("batch #%d %s", batch.ID, req.Name)
		if req.Overridden {
			note += " (override)"
		}
		position, negative, err := issueStockTx(tx, e.productionWarehouseId, req.ProductId, req.Qty,
			models.MovementTypeProductionIssue, "production_batches", batch.ID, "", note, allowNegative)
		if err != nil {
			tx.Rollback()
			if !utils.IsInsufficientStockError(err) {
				config.LogErrorCtx(ctx, e.logger, "productionWorkflow.go", "StartBatch", "issueStockTx", req, err)
			}
			return nil, err
		}
		wentNegative = wentNegative || negative
		totalCost = totalCost.Add(req.Qty.Mul(position.AverageCost))
	}

	now := time.Now()
	batch.ProductionDate = productionDate
	batch.PlannedQty = utils.RoundQty(plannedQty)
	batch.Status = models.BatchStatusInProduction
	batch.TotalIngredientCost = utils.RoundMoney(totalCost)
	batch.TraceNote = utils.Truncate(plan.TraceNote, 255)
	batch.StartedAt = &now
	if err := tx.Save(batch).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &StartBatchResult{
		WentNegative: wentNegative,
		Batch:        batch,
		Requirements: plan.Requirements,
	}, nil
}

type FinishBatchInput struct {
	BatchId   int             `json:"batch_id" binding:"required"`
	ActualQty decimal.Decimal `json:"actual_qty" binding:"required"`
}

type FinishBatchResult struct {
	Batch    *models.ProductionBatch `json:"batch"`
	UnitCost decimal.Decimal         `json:"unit_cost"`
}

// FinishBatch closes an In Production batch: the run's total ingredient
// cost is spread over the actual output and the finished goods are
// received into the finished-goods warehouse at that unit cost. When the
// batch row predates cost stamping, the total falls back to summing the
// batch's issue movements.
func (e *Engine) FinishBatch(ctx context.Context, input *FinishBatchInput) (*FinishBatchResult, error) {
	if !input.ActualQty.IsPositive() {
		return nil, utils.NewValidationError("actual_qty", "must be positive")
	}

	batchRef, err := models.GetProductionBatch(ctx, e.db, input.BatchId)
	if err != nil {
		return nil, err
	}
	release := e.acquireBatchLock(ctx, batchRef.ProductId)
	defer release()

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	batch, err := models.LockProductionBatch(tx, input.BatchId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if batch.Status != models.BatchStatusInProduction {
		tx.Rollback()
		return nil, &utils.InvalidStateError{
			Resource: "production batch",
			ID:       batch.ID,
			State:    string(batch.Status),
			Action:   "finish",
		}
	}

	totalCost := batch.TotalIngredientCost
	if totalCost.IsZero() {
		totalCost, err = sumBatchIssueCost(tx, batch.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	actual := utils.RoundQty(input.ActualQty)
	unitCost := utils.RoundCost(totalCost.Div(actual))

	note := fmt.Sprintf("batch #%d output", batch.ID)
	if _, err := receiveStockTx(tx, e.finishedWarehouseId, batch.ProductId, actual, unitCost,
		models.MovementTypeProductionReceipt, "production_batches", batch.ID, "", note); err != nil {
		tx.Rollback()
		config.LogErrorCtx(ctx, e.logger, "productionWorkflow.go", "FinishBatch", "receiveStockTx", input, err)
		return nil, err
	}

	now := time.Now()
	batch.ActualQty = decimal.NewNullDecimal(actual)
	batch.Status = models.BatchStatusReceived
	batch.TotalIngredientCost = utils.RoundMoney(totalCost)
	batch.FinishedAt = &now
	if err := tx.Save(batch).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &FinishBatchResult{Batch: batch, UnitCost: unitCost}, nil
}

// sumBatchIssueCost reconstructs a batch's ingredient cost from its issue
// movements: each PI row stores a negative qty_change priced at issue time.
func sumBatchIssueCost(tx *gorm.DB, batchId int) (decimal.Decimal, error) {
	var movements []models.InventoryMovement
	err := tx.Where("ref_table = ? AND ref_id = ? AND movement_type = ?",
		"production_batches", batchId, models.MovementTypeProductionIssue).
		Find(&movements).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.QtyChange.Neg().Mul(m.UnitCost))
	}
	return utils.RoundMoney(total), nil
}

type ReturnForReworkInput struct {
	BatchId int             `json:"batch_id" binding:"required"`
	Qty     decimal.Decimal `json:"qty" binding:"required"`
	Note    string          `json:"note"`
}

type ReturnForReworkResult struct {
	Batch       *models.ProductionBatch `json:"batch"`
	TransferRef string                  `json:"transfer_ref"`
}

// ReturnForRework moves finished output back into the production warehouse
// as material for a new run. The two movements share a transfer ref so the
// pair reads as one transfer in the ledger.
func (e *Engine) ReturnForRework(ctx context.Context, input *ReturnForReworkInput) (*ReturnForReworkResult, error) {
	if !input.Qty.IsPositive() {
		return nil, utils.NewValidationError("qty", "must be positive")
	}

	batchRef, err := models.GetProductionBatch(ctx, e.db, input.BatchId)
	if err != nil {
		return nil, err
	}
	release := e.acquireBatchLock(ctx, batchRef.ProductId)
	defer release()

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	batch, err := models.LockProductionBatch(tx, input.BatchId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if batch.Status != models.BatchStatusInProduction && batch.Status != models.BatchStatusReceived {
		tx.Rollback()
		return nil, &utils.InvalidStateError{
			Resource: "production batch",
			ID:       batch.ID,
			State:    string(batch.Status),
			Action:   "return for rework",
		}
	}

	qty := utils.RoundQty(input.Qty)
	if batch.Status == models.BatchStatusReceived && batch.ActualQty.Valid && qty.GreaterThan(batch.ActualQty.Decimal) {
		tx.Rollback()
		return nil, utils.NewValidationError("qty", "exceeds batch output")
	}

	transferRef := uuid.NewString()
	note := fmt.Sprintf("rework batch #%d", batch.ID)
	if input.Note != "" {
		note += ": " + input.Note
	}

	position, _, err := issueStockTx(tx, e.finishedWarehouseId, batch.ProductId, qty,
		models.MovementTypeReturn, "production_batches", batch.ID, transferRef, note, true)
	if err != nil {
		tx.Rollback()
		config.LogErrorCtx(ctx, e.logger, "productionWorkflow.go", "ReturnForRework", "issueStockTx", input, err)
		return nil, err
	}
	if _, err := receiveStockTx(tx, e.productionWarehouseId, batch.ProductId, qty, position.AverageCost,
		models.MovementTypeReturn, "production_batches", batch.ID, transferRef, note); err != nil {
		tx.Rollback()
		config.LogErrorCtx(ctx, e.logger, "productionWorkflow.go", "ReturnForRework", "receiveStockTx", input, err)
		return nil, err
	}

	batch.Status = models.BatchStatusReworkReturned
	if err := tx.Save(batch).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &ReturnForReworkResult{Batch: batch, TransferRef: transferRef}, nil
}

// BatchUsageLine compares one material's planned quantity against what was
// actually issued.
type BatchUsageLine struct {
	ProductId int             `json:"product_id"`
	Name      string          `json:"name"`
	Planned   decimal.Decimal `json:"planned"`
	Used      decimal.Decimal `json:"used"`
}

type BatchDetail struct {
	Batch *models.ProductionBatch `json:"batch"`
	Usage []BatchUsageLine        `json:"usage"`
}

// GetBatchDetail returns a batch with its planned-vs-used material lines.
// Planned comes from the current recipe scaled to the planned quantity;
// used is summed from the batch's issue movements, so overrides show up as
// the materials actually consumed.
func (e *Engine) GetBatchDetail(ctx context.Context, batchId int) (*BatchDetail, error) {
	batch, err := models.GetProductionBatch(ctx, e.db, batchId)
	if err != nil {
		return nil, err
	}

	lines, err := models.GetRecipeLines(e.db.WithContext(ctx), batch.ProductId)
	if err != nil {
		return nil, err
	}
	mult := batch.PlannedQty.Div(decimal.NewFromInt(100))

	usage := make(map[int]*BatchUsageLine)
	var order []int
	for _, line := range lines {
		usage[line.MaterialProductId] = &BatchUsageLine{
			ProductId: line.MaterialProductId,
			Name:      line.Name,
			Planned:   utils.RoundQty(line.QtyPer100.Mul(mult)),
			Used:      decimal.Zero,
		}
		order = append(order, line.MaterialProductId)
	}

	var used []struct {
		ProductId int
		Name      string
		Total     decimal.Decimal
	}
	err = e.db.WithContext(ctx).Model(&models.InventoryMovement{}).
		Select("inventory_movements.product_id, products.name, COALESCE(SUM(-inventory_movements.qty_change), 0) AS total").
		Joins("JOIN products ON products.id = inventory_movements.product_id").
		Where("inventory_movements.ref_table = ? AND inventory_movements.ref_id = ? AND inventory_movements.movement_type = ?",
			"production_batches", batchId, models.MovementTypeProductionIssue).
		Group("inventory_movements.product_id, products.name").
		Scan(&used).Error
	if err != nil {
		return nil, err
	}
	for _, u := range used {
		if line, ok := usage[u.ProductId]; ok {
			line.Used = u.Total
			continue
		}
		usage[u.ProductId] = &BatchUsageLine{
			ProductId: u.ProductId,
			Name:      u.Name,
			Planned:   decimal.Zero,
			Used:      u.Total,
		}
		order = append(order, u.ProductId)
	}

	detail := BatchDetail{Batch: batch}
	for _, id := range order {
		detail.Usage = append(detail.Usage, *usage[id])
	}
	return &detail, nil
}
