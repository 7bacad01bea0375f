package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/lahodne/vyroba_backend/config"
	"bitbucket.org/lahodne/vyroba_backend/models"
	"gorm.io/gorm"
)

// Reconciles stock_positions against the movement ledger. The ledger is
// the source of truth: for every position key the summed qty_change must
// equal the stored quantity. Defaults to report-only; --fix rewrites
// mismatched quantities from the ledger sums.
func main() {
	fix := flag.Bool("fix", false, "Rewrite mismatched position quantities from the ledger")
	confirm := flag.String("confirm", "", "Type REBUILD to proceed when fix is set")
	warehouseId := flag.Int("warehouse-id", 0, "Limit to one warehouse (0 = all)")
	flag.Parse()

	if *fix && strings.TrimSpace(*confirm) != "REBUILD" {
		fmt.Fprintln(os.Stderr, "set --confirm=REBUILD to proceed with --fix")
		os.Exit(1)
	}

	db := config.ConnectDatabaseWithRetry()

	var positions []models.StockPosition
	q := db.Order("warehouse_id, product_id")
	if *warehouseId > 0 {
		q = q.Where("warehouse_id = ?", *warehouseId)
	}
	if err := q.Find(&positions).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load positions: %v\n", err)
		os.Exit(1)
	}

	mismatches := 0
	for _, position := range positions {
		total, err := models.SumMovementQty(db, position.WarehouseId, position.ProductId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sum movements wh=%d product=%d: %v\n",
				position.WarehouseId, position.ProductId, err)
			os.Exit(1)
		}
		if total.Equal(position.Quantity) {
			continue
		}
		mismatches++
		fmt.Printf("MISMATCH wh=%d product=%d position=%s ledger=%s\n",
			position.WarehouseId, position.ProductId, position.Quantity.String(), total.String())

		if !*fix {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			locked, err := models.LockStockPosition(tx, position.WarehouseId, position.ProductId)
			if err != nil {
				return err
			}
			ledgerTotal, err := models.SumMovementQty(tx, position.WarehouseId, position.ProductId)
			if err != nil {
				return err
			}
			return tx.Model(&models.StockPosition{}).
				Where("id = ?", locked.ID).
				Update("quantity", ledgerTotal).Error
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "fix wh=%d product=%d: %v\n",
				position.WarehouseId, position.ProductId, err)
			os.Exit(1)
		}
		fmt.Printf("FIXED wh=%d product=%d -> %s\n",
			position.WarehouseId, position.ProductId, total.String())
	}

	fmt.Printf("checked %d positions, %d mismatches", len(positions), mismatches)
	if *fix {
		fmt.Print(" (fixed)")
	}
	fmt.Println()
}
