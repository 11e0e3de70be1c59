// README: Common money value object used across modules.
package types

import "github.com/shopspring/decimal"

// Money is a monetary amount in EUR with 2-decimal precision. Arithmetic goes
// through shopspring/decimal; rounding is half-up at 2 decimals.
type Money = decimal.Decimal

// MustMoney parses a decimal literal and panics on malformed input. Intended
// for constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Round2 rounds half-up to 2 decimal places.
func Round2(m Money) Money {
	return m.Round(2)
}
