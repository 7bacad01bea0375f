package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/lahodne/vyroba_backend/models"
	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IngredientOverride adjusts one recipe material for a single batch.
// UseOriginalQty is the absolute quantity of the original material still
// consumed (zero cancels the line), and ToProductId/ToQty optionally add a
// substitute on top. Partial use plus substitution is one override:
// "5 of Pork and 25 of Beef instead of 80 of Pork".
type IngredientOverride struct {
	FromProductId  int              `json:"from_product_id" binding:"required"`
	UseOriginalQty decimal.Decimal  `json:"use_original_qty"`
	ToProductId    int              `json:"to_product_id"`
	ToQty          *decimal.Decimal `json:"to_qty"`
}

// Requirement is one material line of a resolved batch plan.
type Requirement struct {
	ProductId  int             `json:"product_id"`
	Name       string          `json:"name"`
	Qty        decimal.Decimal `json:"qty"`
	Overridden bool            `json:"overridden"`
}

type Shortage struct {
	ProductId int             `json:"product_id"`
	Name      string          `json:"name"`
	Required  decimal.Decimal `json:"required"`
	InStock   decimal.Decimal `json:"in_stock"`
	Shortage  decimal.Decimal `json:"shortage"`
}

// RequirementList is the resolved material plan for one batch: final
// per-material quantities after overrides, an estimated cost at current
// average costs, shortages against the issuing warehouse, and a trace note
// recording what was overridden and by whom.
type RequirementList struct {
	Requirements  []Requirement   `json:"requirements"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Shortages     []Shortage      `json:"shortages"`
	TraceNote     string          `json:"trace_note"`
}

type NoRecipeError struct {
	ProductId int
}

func (e *NoRecipeError) Error() string {
	return fmt.Sprintf("product %d has no recipe", e.ProductId)
}

type InvalidOverrideError struct {
	FromProductId int
	Reason        string
}

func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid override for product %d: %s", e.FromProductId, e.Reason)
}

// overrideSubstitute resolves the substitute side of an override. No
// declared substitute is not an error here; callers decide whether the
// override still makes sense without one.
func overrideSubstitute(tx *gorm.DB, override *IngredientOverride) (*models.Product, decimal.Decimal, error) {
	if override.ToProductId == 0 || override.ToQty == nil || !override.ToQty.IsPositive() {
		return nil, decimal.Zero, nil
	}
	substitute, err := models.GetProduct(tx.Statement.Context, tx, override.ToProductId)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return substitute, utils.RoundQty(*override.ToQty), nil
}

// resolveRequirements expands a finished product's recipe to the planned
// weight, applies per-batch overrides, and prices and checks the result
// against the issuing warehouse. Quantities scale by plannedWeight/100
// because recipe lines are per 100 mass units. Read-only; the snapshot it
// returns is advisory until the batch start re-reads under row locks.
func resolveRequirements(tx *gorm.DB, warehouseId int, productId int, plannedWeight decimal.Decimal, overrides []IngredientOverride, author string) (*RequirementList, error) {
	if !plannedWeight.IsPositive() {
		return nil, utils.NewValidationError("planned_qty", "must be positive")
	}
	if len(overrides) > 0 && author == "" {
		return nil, utils.NewValidationError("author", "required when overrides are present")
	}

	lines, err := models.GetRecipeLines(tx, productId)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &NoRecipeError{ProductId: productId}
	}

	overrideByFrom := make(map[int]*IngredientOverride, len(overrides))
	for i := range overrides {
		o := &overrides[i]
		if _, dup := overrideByFrom[o.FromProductId]; dup {
			return nil, &InvalidOverrideError{FromProductId: o.FromProductId, Reason: "duplicate override"}
		}
		overrideByFrom[o.FromProductId] = o
	}

	mult := plannedWeight.Div(decimal.NewFromInt(100))

	var (
		requirements []Requirement
		traceParts   []string
	)
	for _, line := range lines {
		baseQty := utils.RoundQty(line.QtyPer100.Mul(mult))
		override, ok := overrideByFrom[line.MaterialProductId]
		if !ok {
			requirements = append(requirements, Requirement{
				ProductId: line.MaterialProductId,
				Name:      line.Name,
				Qty:       baseQty,
			})
			continue
		}
		delete(overrideByFrom, line.MaterialProductId)

		// The declared original quantity is taken as-is: it may be under
		// or over the base requirement, the trace records both.
		useQty := utils.RoundQty(override.UseOriginalQty)
		if useQty.IsNegative() {
			useQty = decimal.Zero
		}
		if useQty.IsPositive() {
			requirements = append(requirements, Requirement{
				ProductId:  line.MaterialProductId,
				Name:       line.Name,
				Qty:        useQty,
				Overridden: true,
			})
		}

		substitute, substituteQty, err := overrideSubstitute(tx, override)
		if err != nil {
			return nil, err
		}
		if substitute != nil {
			requirements = append(requirements, Requirement{
				ProductId:  substitute.ID,
				Name:       substitute.Name,
				Qty:        substituteQty,
				Overridden: true,
			})
			traceParts = append(traceParts, fmt.Sprintf("%s %s -> orig %s + %s %s",
				line.Name, baseQty.String(), useQty.String(), substitute.Name, substituteQty.String()))
		} else {
			traceParts = append(traceParts, fmt.Sprintf("%s %s -> orig %s",
				line.Name, baseQty.String(), useQty.String()))
		}
	}

	// An override outside the recipe is only meaningful as a substitution:
	// without a to_qty there is nothing to consume.
	for fromId, override := range overrideByFrom {
		substitute, substituteQty, err := overrideSubstitute(tx, override)
		if err != nil {
			return nil, err
		}
		if substitute == nil {
			return nil, &InvalidOverrideError{FromProductId: fromId, Reason: "not a recipe material and no to_qty to substitute"}
		}
		requirements = append(requirements, Requirement{
			ProductId:  substitute.ID,
			Name:       substitute.Name,
			Qty:        substituteQty,
			Overridden: true,
		})
		traceParts = append(traceParts, fmt.Sprintf("extra %s %s", substitute.Name, substituteQty.String()))
	}

	estimated := decimal.Zero
	var shortages []Shortage
	for _, req := range requirements {
		position, err := models.GetStockPosition(tx, warehouseId, req.ProductId)
		if err != nil {
			return nil, err
		}
		estimated = estimated.Add(req.Qty.Mul(position.AverageCost))
		if position.Quantity.LessThan(req.Qty) {
			shortages = append(shortages, Shortage{
				ProductId: req.ProductId,
				Name:      req.Name,
				Required:  req.Qty,
				InStock:   position.Quantity,
				Shortage:  utils.RoundQty(req.Qty.Sub(position.Quantity)),
			})
		}
	}

	traceNote := ""
	if len(traceParts) > 0 {
		traceNote = fmt.Sprintf("overrides by %s: %s", author, strings.Join(traceParts, "; "))
	}

	return &RequirementList{
		Requirements:  requirements,
		EstimatedCost: utils.RoundMoney(estimated),
		Shortages:     shortages,
		TraceNote:     traceNote,
	}, nil
}
