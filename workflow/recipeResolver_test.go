package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/lahodne/vyroba_backend/models"
	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSausageRecipe(t *testing.T, e *Engine) (sausage, pork, spice *models.Product) {
	t.Helper()
	db := e.db
	sausage = createTestProduct(t, db, "Sausage", models.MaterialKindFinished)
	pork = createTestProduct(t, db, "Pork", models.MaterialKindRaw)
	spice = createTestProduct(t, db, "Spice Mix", models.MaterialKindRaw)
	setTestRecipe(t, db, sausage.ID, []models.NewRecipeItem{
		{MaterialProductId: pork.ID, QtyPer100: dec("80")},
		{MaterialProductId: spice.ID, QtyPer100: dec("2.5")},
	})
	return sausage, pork, spice
}

func TestResolveRequirements_Scaling(t *testing.T) {
	e, _ := newTestEngine(t)
	sausage, pork, spice := seedSausageRecipe(t, e)
	mustReceive(t, e, 1, pork.ID, "500", "3.00")
	mustReceive(t, e, 1, spice.ID, "50", "10.00")

	plan, err := resolveRequirements(e.db, 1, sausage.ID, dec("200"), nil, "")
	require.NoError(t, err)
	require.Len(t, plan.Requirements, 2)

	byId := map[int]Requirement{}
	for _, req := range plan.Requirements {
		byId[req.ProductId] = req
	}
	assert.True(t, byId[pork.ID].Qty.Equal(dec("160")), "80 per 100 scaled to 200")
	assert.True(t, byId[spice.ID].Qty.Equal(dec("5")))
	assert.Empty(t, plan.Shortages)
	assert.Empty(t, plan.TraceNote)
	// 160*3 + 5*10 rounded to money.
	assert.True(t, plan.EstimatedCost.Equal(dec("530")), "got %s", plan.EstimatedCost)
}

func TestResolveRequirements_Shortages(t *testing.T) {
	e, _ := newTestEngine(t)
	sausage, pork, spice := seedSausageRecipe(t, e)
	mustReceive(t, e, 1, pork.ID, "100", "3.00")
	// No spice at all.

	plan, err := resolveRequirements(e.db, 1, sausage.ID, dec("200"), nil, "")
	require.NoError(t, err)
	require.Len(t, plan.Shortages, 2)

	byId := map[int]Shortage{}
	for _, s := range plan.Shortages {
		byId[s.ProductId] = s
	}
	assert.True(t, byId[pork.ID].Shortage.Equal(dec("60")))
	assert.True(t, byId[pork.ID].InStock.Equal(dec("100")))
	assert.True(t, byId[spice.ID].Shortage.Equal(dec("5")))
	assert.True(t, byId[spice.ID].InStock.IsZero())
}

func TestResolveRequirements_PartialUsePlusSubstitute(t *testing.T) {
	e, db := newTestEngine(t)
	sausage, pork, spice := seedSausageRecipe(t, e)
	beef := createTestProduct(t, db, "Beef", models.MaterialKindRaw)
	mustReceive(t, e, 1, pork.ID, "500", "3.00")
	mustReceive(t, e, 1, beef.ID, "300", "4.00")
	mustReceive(t, e, 1, spice.ID, "50", "10.00")

	// Use 5 of the original pork and 25 of beef on top, instead of the
	// base 80 of pork.
	toQty := dec("25")
	plan, err := resolveRequirements(e.db, 1, sausage.ID, dec("100"), []IngredientOverride{
		{FromProductId: pork.ID, UseOriginalQty: dec("5"), ToProductId: beef.ID, ToQty: &toQty},
	}, "jana")
	require.NoError(t, err)

	byId := map[int]Requirement{}
	for _, req := range plan.Requirements {
		byId[req.ProductId] = req
	}
	require.Contains(t, byId, pork.ID, "partial original use must survive the substitution")
	assert.True(t, byId[pork.ID].Qty.Equal(dec("5")))
	assert.True(t, byId[pork.ID].Overridden)
	require.Contains(t, byId, beef.ID)
	assert.True(t, byId[beef.ID].Qty.Equal(dec("25")))
	assert.True(t, byId[beef.ID].Overridden)
	assert.Contains(t, plan.TraceNote, "jana")
	assert.Contains(t, plan.TraceNote, "Pork 80 -> orig 5 + Beef 25")

	// Quantity-only override: less of the original, no substitute.
	plan, err = resolveRequirements(e.db, 1, sausage.ID, dec("100"), []IngredientOverride{
		{FromProductId: pork.ID, UseOriginalQty: dec("60")},
	}, "jana")
	require.NoError(t, err)
	byId = map[int]Requirement{}
	for _, req := range plan.Requirements {
		byId[req.ProductId] = req
	}
	assert.True(t, byId[pork.ID].Qty.Equal(dec("60")))
	assert.Contains(t, plan.TraceNote, "Pork 80 -> orig 60")

	// Zero original use cancels the line entirely.
	plan, err = resolveRequirements(e.db, 1, sausage.ID, dec("100"), []IngredientOverride{
		{FromProductId: pork.ID},
	}, "jana")
	require.NoError(t, err)
	for _, req := range plan.Requirements {
		assert.NotEqual(t, pork.ID, req.ProductId)
	}
}

func TestResolveRequirements_Failures(t *testing.T) {
	e, db := newTestEngine(t)
	sausage, pork, _ := seedSausageRecipe(t, e)
	orphan := createTestProduct(t, db, "Orphan", models.MaterialKindRaw)

	_, err := resolveRequirements(e.db, 1, orphan.ID, dec("100"), nil, "")
	var noRecipe *NoRecipeError
	require.True(t, errors.As(err, &noRecipe))
	assert.Equal(t, orphan.ID, noRecipe.ProductId)

	_, err = resolveRequirements(e.db, 1, sausage.ID, dec("0"), nil, "")
	assert.True(t, utils.IsValidationError(err))

	// Overrides demand an author.
	_, err = resolveRequirements(e.db, 1, sausage.ID, dec("100"), []IngredientOverride{
		{FromProductId: pork.ID, UseOriginalQty: dec("5")},
	}, "")
	assert.True(t, utils.IsValidationError(err))

	// An override outside the recipe with no substitute quantity is a typo.
	_, err = resolveRequirements(e.db, 1, sausage.ID, dec("100"), []IngredientOverride{
		{FromProductId: orphan.ID, UseOriginalQty: dec("5")},
	}, "jana")
	var badOverride *InvalidOverrideError
	require.True(t, errors.As(err, &badOverride))
	assert.Equal(t, orphan.ID, badOverride.FromProductId)
}

func TestResolveRequirements_NonRecipeOverrideWithSubstitute(t *testing.T) {
	e, db := newTestEngine(t)
	sausage, _, spice := seedSausageRecipe(t, e)
	orphan := createTestProduct(t, db, "Orphan", models.MaterialKindRaw)
	garlic := createTestProduct(t, db, "Garlic", models.MaterialKindRaw)
	mustReceive(t, e, 1, garlic.ID, "10", "6.00")
	mustReceive(t, e, 1, spice.ID, "50", "10.00")

	// Outside the recipe but with a substitute declared: the substitute
	// quantity is consumed on top of the recipe lines.
	toQty := dec("2")
	plan, err := resolveRequirements(e.db, 1, sausage.ID, dec("100"), []IngredientOverride{
		{FromProductId: orphan.ID, ToProductId: garlic.ID, ToQty: &toQty},
	}, "jana")
	require.NoError(t, err)

	byId := map[int]Requirement{}
	for _, req := range plan.Requirements {
		byId[req.ProductId] = req
	}
	require.Contains(t, byId, garlic.ID)
	assert.True(t, byId[garlic.ID].Qty.Equal(dec("2")))
	assert.True(t, byId[garlic.ID].Overridden)
	assert.Contains(t, plan.TraceNote, "extra Garlic 2")
}
