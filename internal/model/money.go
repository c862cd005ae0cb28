package model

import "github.com/shopspring/decimal"

func init() {
	// Clients read amounts as numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// FromCents converts a stored integer cent amount to a two-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents converts d to integer cents, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// HasAtMostTwoPlaces reports whether d can be stored in cents without rounding.
func HasAtMostTwoPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
