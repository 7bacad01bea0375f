package models

import (
	"context"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	importSheetProducts = "Products"
	importSheetRecipes  = "Recipes"
)

type CatalogImportResult struct {
	ProductsCreated int `json:"products_created"`
	ProductsSkipped int `json:"products_skipped"`
	RecipesSet      int `json:"recipes_set"`
}

// ImportCatalogWorkbook loads products and recipes from an Excel workbook.
//
// Sheet "Products": Name | UnitKind | PieceWeightGrams | MaterialKind | MinStock
// Sheet "Recipes":  ProductName | MaterialName | QtyPer100
//
// Existing products are skipped by name; recipes replace any existing
// recipe of the named product. The first row of each sheet is a header.
func ImportCatalogWorkbook(ctx context.Context, db *gorm.DB, r io.Reader) (*CatalogImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, utils.NewValidationError("file", "not a readable xlsx workbook")
	}
	defer f.Close()

	result := &CatalogImportResult{}

	rows, err := f.GetRows(importSheetProducts)
	if err != nil {
		return nil, utils.NewValidationError("file", fmt.Sprintf("missing sheet %q", importSheetProducts))
	}
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(cell(row, 0))
		if name == "" {
			continue
		}

		var count int64
		if err := db.WithContext(ctx).Model(&Product{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			result.ProductsSkipped++
			continue
		}

		input := NewProduct{
			Name:             name,
			UnitKind:         UnitKind(strings.TrimSpace(cell(row, 1))),
			PieceWeightGrams: parseDecimalCell(cell(row, 2)),
			MaterialKind:     MaterialKind(strings.TrimSpace(cell(row, 3))),
			MinStock:         parseDecimalCell(cell(row, 4)),
		}
		if _, err := CreateProduct(ctx, db, &input); err != nil {
			return nil, fmt.Errorf("row %d of %s: %w", i+1, importSheetProducts, err)
		}
		result.ProductsCreated++
	}

	recipeRows, err := f.GetRows(importSheetRecipes)
	if err != nil {
		// Recipes sheet is optional.
		return result, nil
	}

	lines := make(map[string][]NewRecipeItem)
	order := make([]string, 0)
	for i, row := range recipeRows {
		if i == 0 || len(row) == 0 {
			continue
		}
		productName := strings.TrimSpace(cell(row, 0))
		materialName := strings.TrimSpace(cell(row, 1))
		if productName == "" || materialName == "" {
			continue
		}
		material, err := GetProductByName(ctx, db, materialName)
		if err != nil {
			return nil, fmt.Errorf("row %d of %s: material %q: %w", i+1, importSheetRecipes, materialName, err)
		}
		if _, ok := lines[productName]; !ok {
			order = append(order, productName)
		}
		lines[productName] = append(lines[productName], NewRecipeItem{
			MaterialProductId: material.ID,
			QtyPer100:         parseDecimalCell(cell(row, 2)),
		})
	}

	for _, productName := range order {
		product, err := GetProductByName(ctx, db, productName)
		if err != nil {
			return nil, fmt.Errorf("recipe product %q: %w", productName, err)
		}
		if _, err := SetRecipe(ctx, db, product.ID, lines[productName]); err != nil {
			return nil, fmt.Errorf("recipe for %q: %w", productName, err)
		}
		result.RecipesSet++
	}
	return result, nil
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func parseDecimalCell(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")))
	if err != nil {
		return decimal.Zero
	}
	return d
}
