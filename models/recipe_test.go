package models

import (
	"context"
	"testing"

	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRecipe_ReplacesExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sausage, err := CreateProduct(ctx, db, &NewProduct{Name: "Sausage", MaterialKind: MaterialKindFinished})
	require.NoError(t, err)
	pork, err := CreateProduct(ctx, db, &NewProduct{Name: "Pork"})
	require.NoError(t, err)
	beef, err := CreateProduct(ctx, db, &NewProduct{Name: "Beef"})
	require.NoError(t, err)

	_, err = SetRecipe(ctx, db, sausage.ID, []NewRecipeItem{
		{MaterialProductId: pork.ID, QtyPer100: dec("80")},
	})
	require.NoError(t, err)

	_, err = SetRecipe(ctx, db, sausage.ID, []NewRecipeItem{
		{MaterialProductId: beef.ID, QtyPer100: dec("75")},
	})
	require.NoError(t, err)

	lines, err := GetRecipeLines(db, sausage.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1, "old lines replaced, not merged")
	assert.Equal(t, beef.ID, lines[0].MaterialProductId)
	assert.True(t, lines[0].QtyPer100.Equal(dec("75")))
}

func TestSetRecipe_Validation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sausage, err := CreateProduct(ctx, db, &NewProduct{Name: "Sausage", MaterialKind: MaterialKindFinished})
	require.NoError(t, err)
	pork, err := CreateProduct(ctx, db, &NewProduct{Name: "Pork"})
	require.NoError(t, err)

	_, err = SetRecipe(ctx, db, sausage.ID, nil)
	assert.True(t, utils.IsValidationError(err))

	_, err = SetRecipe(ctx, db, sausage.ID, []NewRecipeItem{
		{MaterialProductId: pork.ID, QtyPer100: dec("80")},
		{MaterialProductId: pork.ID, QtyPer100: dec("10")},
	})
	assert.True(t, utils.IsValidationError(err), "duplicate material")

	_, err = SetRecipe(ctx, db, sausage.ID, []NewRecipeItem{
		{MaterialProductId: pork.ID, QtyPer100: dec("0")},
	})
	assert.True(t, utils.IsValidationError(err))

	_, err = SetRecipe(ctx, db, sausage.ID, []NewRecipeItem{
		{MaterialProductId: 99, QtyPer100: dec("80")},
	})
	assert.True(t, utils.IsNotFoundError(err))

	_, err = SetRecipe(ctx, db, 99, []NewRecipeItem{
		{MaterialProductId: pork.ID, QtyPer100: dec("80")},
	})
	assert.True(t, utils.IsNotFoundError(err))
}
