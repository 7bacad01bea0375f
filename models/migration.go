package models

import "gorm.io/gorm"

func MigrateTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&Product{},
		&Recipe{},
		&RecipeItem{},
		&Warehouse{},
		&StockPosition{},
		&InventoryMovement{},
		&WriteOffLog{},
		&ProductionBatch{},
	)
}
