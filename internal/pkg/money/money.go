// Package money holds the rounding rules shared by every amount the engine produces.
package money

import "github.com/shopspring/decimal"

// Precision is the number of decimal places amounts are persisted with.
const Precision int32 = 2

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to Precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percentage returns value% of amount.
func Percentage(amount, value decimal.Decimal) decimal.Decimal {
	return amount.Mul(value).Div(hundred)
}

// Ratio returns part/whole*100 rounded to Precision, zero when whole is zero.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return Round(part.Mul(hundred).Div(whole))
}
