package utils

import (
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

// Quantities are carried to millesimal precision, unit costs to four
// decimals and money totals to two, all half-up. Matches the storage
// decimal(20,4) columns.

func RoundQty(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
