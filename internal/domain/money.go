package domain

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MoneyPrecision is the number of decimal places used for derived monetary amounts.
const MoneyPrecision = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to MoneyPrecision places, halves away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPrecision)
}

// Percentage returns part / whole * 100 rounded to MoneyPrecision places.
// Returns zero when whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(MoneyPrecision)
}

// ExceedsPlaces reports whether d carries more than places significant decimal digits.
// Trailing zeros do not count: "1.500000000" has one place.
func ExceedsPlaces(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

// FormatAmount renders an amount with the currency's symbol and grouping, e.g. "$1,500.00".
// Codes unknown to the currency table fall back to "1500.00 XYZ".
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(MoneyPrecision) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// SignedAmount is FormatAmount with an explicit "+" for positive values.
func SignedAmount(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + FormatAmount(amount, currency)
	}
	return FormatAmount(amount, currency)
}
