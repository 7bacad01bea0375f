package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:200;uniqueIndex;not null" json:"name" binding:"required"`
	UnitKind         UnitKind        `gorm:"size:10;not null;default:mass" json:"unit_kind"`
	PieceWeightGrams decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"piece_weight_grams"`
	MaterialKind     MaterialKind    `gorm:"size:20;not null;default:raw" json:"material_kind"`
	MinStock         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_stock"`
	IsActive         *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name             string          `json:"name" binding:"required"`
	UnitKind         UnitKind        `json:"unit_kind"`
	PieceWeightGrams decimal.Decimal `json:"piece_weight_grams"`
	MaterialKind     MaterialKind    `json:"material_kind"`
	MinStock         decimal.Decimal `json:"min_stock"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, db *gorm.DB, id int) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return utils.NewValidationError("name", "required")
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Product{}).
		Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewValidationError("name", "already in use")
	}

	switch input.UnitKind {
	case "", UnitKindMass:
	case UnitKindPiece:
		if !input.PieceWeightGrams.IsPositive() {
			return utils.NewValidationError("piece_weight_grams", "required for piece-based products")
		}
	default:
		return utils.NewValidationError("unit_kind", "must be mass or piece")
	}

	switch input.MaterialKind {
	case "", MaterialKindRaw, MaterialKindFinished, MaterialKindSliced, MaterialKindExternal:
	default:
		return utils.NewValidationError("material_kind", "unknown material kind")
	}
	return nil
}

func CreateProduct(ctx context.Context, db *gorm.DB, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, db, 0); err != nil {
		return nil, err
	}

	product := Product{
		Name:             strings.TrimSpace(input.Name),
		UnitKind:         input.UnitKind,
		PieceWeightGrams: input.PieceWeightGrams,
		MaterialKind:     input.MaterialKind,
		MinStock:         input.MinStock,
		IsActive:         utils.NewTrue(),
	}
	if product.UnitKind == "" {
		product.UnitKind = UnitKindMass
	}
	if product.MaterialKind == "" {
		product.MaterialKind = MaterialKindRaw
	}

	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, db *gorm.DB, id int) (*Product, error) {
	var product Product
	err := db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, utils.NewNotFoundError("product", id)
		}
		return nil, err
	}
	return &product, nil
}

func GetProductByName(ctx context.Context, db *gorm.DB, name string) (*Product, error) {
	var product Product
	err := db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&product).Error
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, utils.NewNotFoundError("product", 0)
		}
		return nil, err
	}
	return &product, nil
}

func ListProducts(ctx context.Context, db *gorm.DB, name *string) ([]*Product, error) {
	var results []*Product
	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
