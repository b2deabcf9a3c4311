package fx

import (
	"slices"
	"strings"
)

// DefaultBaseCurrency is the currency every rate table is keyed to unless configured otherwise.
const DefaultBaseCurrency = "NGN"

var supportedCurrencies = []string{"NGN", "USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY"}

// Currencies returns the fixed set of currency codes the wallet accepts.
func Currencies() []string {
	return slices.Clone(supportedCurrencies)
}

// IsSupported reports whether code (any case) belongs to the supported set.
func IsSupported(code string) bool {
	return slices.Contains(supportedCurrencies, Normalize(code))
}

// Normalize trims and uppercases a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
