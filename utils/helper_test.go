package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRounding(t *testing.T) {
	avg := decimal.RequireFromString("2.33333333")
	assert.Equal(t, "2.333", RoundQty(avg).String())
	assert.Equal(t, "2.3333", RoundCost(avg).String())
	assert.Equal(t, "2.33", RoundMoney(avg).String())

	// Money rounds half away from zero.
	assert.Equal(t, "70", RoundMoney(decimal.RequireFromString("69.999")).String())
	assert.Equal(t, "1.5556", RoundCost(decimal.RequireFromString("70").Div(decimal.RequireFromString("45"))).String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abcde", Truncate("abcdefgh", 5))
	assert.Equal(t, "", Truncate("", 5))
}
