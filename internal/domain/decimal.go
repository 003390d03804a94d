package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxUint64Dec = decimal.NewFromUint64(math.MaxUint64)

// AmountToDecimal lifts an integer amount into decimal space for valuation.
func AmountToDecimal(amount uint64) decimal.Decimal {
	return decimal.NewFromUint64(amount)
}

// DecimalToAmount floors a decimal back to an integer amount. Negative values
// and values that do not fit in uint64 fail with ErrArithmeticOverflow —
// valuation math must never fabricate amounts the pools cannot represent.
func DecimalToAmount(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, ErrArithmeticOverflow
	}
	floored := d.Floor()
	if floored.GreaterThan(maxUint64Dec) {
		return 0, ErrArithmeticOverflow
	}
	return floored.BigInt().Uint64(), nil
}
