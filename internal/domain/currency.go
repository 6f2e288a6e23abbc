package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// cryptoCodes are accepted as currencies in addition to ISO-4217 codes.
var cryptoCodes = map[string]struct{}{
	"BTC": {},
	"ETH": {},
}

// NormalizeCurrency trims and uppercases a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCurrency reports whether code is a known ISO-4217 code or a supported crypto code.
func IsValidCurrency(code string) bool {
	code = NormalizeCurrency(code)
	if len(code) != 3 {
		return false
	}
	if _, ok := cryptoCodes[code]; ok {
		return true
	}
	return money.GetCurrency(code) != nil
}

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
