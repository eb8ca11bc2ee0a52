package domain

import "github.com/shopspring/decimal"

// Bounds on caller-supplied money amounts. They keep decimals small enough
// that rendering and arithmetic stay cheap.
const (
	MaxAmountScale         = 8  // digits after the decimal point
	MaxAmountIntegerDigits = 18 // digits before it

	maxCoefficientBits = 87
)

// AmountInBounds reports whether d fits MaxAmountScale and MaxAmountIntegerDigits.
// It only inspects exponent and digit count, so it is safe on hostile input.
func AmountInBounds(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp < -MaxAmountScale || exp > MaxAmountIntegerDigits {
		return false
	}
	// 10^26 needs 87 bits; anything wider cannot fit and is not worth counting
	if d.Coefficient().BitLen() > maxCoefficientBits {
		return false
	}
	return int64(d.NumDigits())+exp <= MaxAmountIntegerDigits
}
