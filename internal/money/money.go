// Package money normalizes monetary amounts to the ledger's canonical
// precision and derives commission figures from them.
package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places stored for every amount.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Normalize rounds v half away from zero to Places decimals.
func Normalize(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

// FromFloat converts a gateway-reported float. Non-finite input yields zero.
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return Normalize(decimal.NewFromFloat(f))
}

// Parse converts free-form input (form fields, legacy columns). Invalid
// input yields zero.
func Parse(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return Normalize(v)
}

// Equal compares two amounts after normalization.
func Equal(a, b decimal.Decimal) bool {
	return Normalize(a).Equal(Normalize(b))
}

// Commission is round(amount × rate) to whole currency units.
func Commission(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(0)
}

// Points is round(amount / 100).
func Points(amount decimal.Decimal) int64 {
	return amount.Div(hundred).Round(0).IntPart()
}

// NonNegative clamps v at zero.
func NonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
