package ledger

import (
	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(maxBalance)

// AmountFromDecimal converts a decoded request amount into minor units. Only
// positive whole numbers that fit in an int64 are accepted.
func AmountFromDecimal(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() || !d.IsInteger() || d.GreaterThan(maxAmount) {
		return 0, ErrInvalidAmount
	}
	return d.IntPart(), nil
}
