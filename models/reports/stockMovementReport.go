package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type StockMovementReportRow struct {
	Ts           time.Time           `json:"ts"`
	WarehouseId  int                 `json:"warehouse_id"`
	ProductId    int                 `json:"product_id"`
	ProductName  string              `json:"product_name"`
	QtyChange    decimal.Decimal     `json:"qty_change"`
	UnitCost     decimal.Decimal     `json:"unit_cost"`
	MovementType models.MovementType `json:"movement_type"`
	RefTable     string              `json:"ref_table"`
	RefId        int                 `json:"ref_id"`
	Note         string              `json:"note"`
}

type StockMovementReportQuery struct {
	WarehouseId int        `json:"warehouse_id"`
	ProductId   int        `json:"product_id"`
	From        *time.Time `json:"from"`
	To          *time.Time `json:"to"`
}

func GetStockMovementReport(ctx context.Context, db *gorm.DB, q StockMovementReportQuery) ([]*StockMovementReportRow, error) {
	dbCtx := db.WithContext(ctx).Model(&models.InventoryMovement{}).
		Select(`inventory_movements.ts, inventory_movements.warehouse_id,
			inventory_movements.product_id, products.name AS product_name,
			inventory_movements.qty_change, inventory_movements.unit_cost,
			inventory_movements.movement_type, inventory_movements.ref_table,
			inventory_movements.ref_id, inventory_movements.note`).
		Joins("JOIN products ON products.id = inventory_movements.product_id")
	if q.WarehouseId > 0 {
		dbCtx = dbCtx.Where("inventory_movements.warehouse_id = ?", q.WarehouseId)
	}
	if q.ProductId > 0 {
		dbCtx = dbCtx.Where("inventory_movements.product_id = ?", q.ProductId)
	}
	if q.From != nil {
		dbCtx = dbCtx.Where("inventory_movements.ts >= ?", *q.From)
	}
	if q.To != nil {
		dbCtx = dbCtx.Where("inventory_movements.ts < ?", *q.To)
	}

	var rows []*StockMovementReportRow
	if err := dbCtx.Order("inventory_movements.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ExportStockMovementXlsx writes the movement report as an xlsx workbook.
func ExportStockMovementXlsx(ctx context.Context, db *gorm.DB, q StockMovementReportQuery, w io.Writer) error {
	rows, err := GetStockMovementReport(ctx, db, q)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Movements"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Ts", "Warehouse", "ProductId", "Product", "QtyChange", "UnitCost", "Type", "RefTable", "RefId", "Note"}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, col+"1", h)
	}

	for i, row := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+rowNo, row.Ts.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheet, "B"+rowNo, row.WarehouseId)
		f.SetCellValue(sheet, "C"+rowNo, row.ProductId)
		f.SetCellValue(sheet, "D"+rowNo, row.ProductName)
		f.SetCellValue(sheet, "E"+rowNo, row.QtyChange.String())
		f.SetCellValue(sheet, "F"+rowNo, row.UnitCost.String())
		f.SetCellValue(sheet, "G"+rowNo, string(row.MovementType))
		f.SetCellValue(sheet, "H"+rowNo, row.RefTable)
		f.SetCellValue(sheet, "I"+rowNo, row.RefId)
		f.SetCellValue(sheet, "J"+rowNo, row.Note)
	}

	return f.Write(w)
}
