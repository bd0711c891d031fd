package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "12999", Normalize(decimal.NewFromInt(12999)).String())
	assert.Equal(t, "10.13", Normalize(decimal.RequireFromString("10.125")).String())
	assert.Equal(t, "0.1", Normalize(decimal.RequireFromString("0.1")).String())
}

func TestFromFloat(t *testing.T) {
	assert.True(t, FromFloat(129.994).Equal(decimal.RequireFromString("129.99")))
	assert.True(t, FromFloat(math.NaN()).IsZero())
	assert.True(t, FromFloat(math.Inf(1)).IsZero())
}

func TestParse(t *testing.T) {
	assert.True(t, Parse("16999").Equal(decimal.NewFromInt(16999)))
	assert.True(t, Parse(" 12,5 ").Equal(decimal.RequireFromString("12.5")))
	assert.True(t, Parse("abc").IsZero())
	assert.True(t, Parse("").IsZero())
}

func TestCommissionArithmetic(t *testing.T) {
	amount := decimal.NewFromInt(12999)
	rate := decimal.RequireFromString("0.25")

	assert.Equal(t, "3250", Commission(amount, rate).String())
	assert.Equal(t, int64(130), Points(amount))

	assert.Equal(t, "4250", Commission(decimal.NewFromInt(16999), rate).String())
	assert.Equal(t, int64(170), Points(decimal.NewFromInt(16999)))
}

func TestEqualAndNonNegative(t *testing.T) {
	assert.True(t, Equal(decimal.RequireFromString("12999.001"), decimal.NewFromInt(12999)))
	assert.False(t, Equal(decimal.RequireFromString("12999.01"), decimal.NewFromInt(12999)))
	assert.True(t, NonNegative(decimal.NewFromInt(-5)).IsZero())
	assert.Equal(t, "5", NonNegative(decimal.NewFromInt(5)).String())
}
