package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/utils"
	"gorm.io/gorm"
)

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewWarehouse) validate(ctx context.Context, db *gorm.DB, id int) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return utils.NewValidationError("name", "required")
	}
	var count int64
	if err := db.WithContext(ctx).Model(&Warehouse{}).
		Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewValidationError("name", "already in use")
	}
	return nil
}

func CreateWarehouse(ctx context.Context, db *gorm.DB, input *NewWarehouse) (*Warehouse, error) {
	if err := input.validate(ctx, db, 0); err != nil {
		return nil, err
	}

	warehouse := Warehouse{
		Name:     strings.TrimSpace(input.Name),
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func GetWarehouse(ctx context.Context, db *gorm.DB, id int) (*Warehouse, error) {
	var warehouse Warehouse
	err := db.WithContext(ctx).Where("id = ?", id).First(&warehouse).Error
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, utils.NewNotFoundError("warehouse", id)
		}
		return nil, err
	}
	return &warehouse, nil
}

func ListWarehouses(ctx context.Context, db *gorm.DB) ([]*Warehouse, error) {
	var results []*Warehouse
	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteWarehouse(ctx context.Context, db *gorm.DB, id int) (*Warehouse, error) {
	warehouse, err := GetWarehouse(ctx, db, id)
	if err != nil {
		return nil, err
	}

	// check if warehouse is used
	var count int64
	if err := db.WithContext(ctx).Model(&StockPosition{}).
		Where("warehouse_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("id", "warehouse has stock")
	}

	if err := db.WithContext(ctx).Delete(&warehouse).Error; err != nil {
		return nil, err
	}
	return warehouse, nil
}
