package models

import (
	"context"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Recipe struct {
	ID        int          `gorm:"primary_key" json:"id"`
	ProductId int          `gorm:"uniqueIndex;not null" json:"product_id"`
	Items     []RecipeItem `gorm:"foreignKey:RecipeId" json:"items"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecipeItem quantities are per 100 mass units of finished product.
type RecipeItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	RecipeId          int             `gorm:"uniqueIndex:idx_recipe_item_material,priority:1;not null" json:"recipe_id"`
	MaterialProductId int             `gorm:"uniqueIndex:idx_recipe_item_material,priority:2;not null" json:"material_product_id"`
	QtyPer100         decimal.Decimal `gorm:"column:qty_per_100;type:decimal(20,4);not null" json:"qty_per_100"`
}

type NewRecipeItem struct {
	MaterialProductId int             `json:"material_product_id" binding:"required"`
	QtyPer100         decimal.Decimal `json:"qty_per_100" binding:"required"`
}

// RecipeLine is a recipe item joined with its material identity, the shape
// the resolver works with.
type RecipeLine struct {
	MaterialProductId int             `json:"material_product_id"`
	Name              string          `json:"name"`
	QtyPer100         decimal.Decimal `gorm:"column:qty_per_100" json:"qty_per_100"`
}

// SetRecipe replaces the recipe of a finished product in one transaction.
func SetRecipe(ctx context.Context, db *gorm.DB, productId int, items []NewRecipeItem) (*Recipe, error) {
	if len(items) == 0 {
		return nil, utils.NewValidationError("items", "at least one recipe line is required")
	}
	if _, err := GetProduct(ctx, db, productId); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(items))
	for _, item := range items {
		if seen[item.MaterialProductId] {
			return nil, utils.NewValidationError("items", "duplicate material in recipe")
		}
		seen[item.MaterialProductId] = true
		if !item.QtyPer100.IsPositive() {
			return nil, utils.NewValidationError("qty_per_100", "must be positive")
		}
		if _, err := GetProduct(ctx, db, item.MaterialProductId); err != nil {
			return nil, err
		}
	}

	var recipe Recipe
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	if err := tx.Where("product_id = ?", productId).FirstOrCreate(&recipe, Recipe{ProductId: productId}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&RecipeItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, item := range items {
		row := RecipeItem{
			RecipeId:          recipe.ID,
			MaterialProductId: item.MaterialProductId,
			QtyPer100:         utils.RoundQty(item.QtyPer100),
		}
		if err := tx.Create(&row).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		recipe.Items = append(recipe.Items, row)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

// GetRecipeLines returns the recipe of a finished product with material
// names resolved. An empty result means no recipe is defined.
func GetRecipeLines(tx *gorm.DB, productId int) ([]RecipeLine, error) {
	var lines []RecipeLine
	err := tx.Model(&RecipeItem{}).
		Select("recipe_items.material_product_id, products.name, recipe_items.qty_per_100").
		Joins("JOIN recipes ON recipes.id = recipe_items.recipe_id").
		Joins("JOIN products ON products.id = recipe_items.material_product_id").
		Where("recipes.product_id = ?", productId).
		Order("products.name").
		Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
