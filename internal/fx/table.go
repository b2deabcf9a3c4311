package fx

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// RateTable maps a currency code to its value in one unit of the base currency.
// The base currency itself maps to 1.
type RateTable map[string]decimal.Decimal

// Rate looks up code case-insensitively.
func (t RateTable) Rate(code string) (decimal.Decimal, bool) {
	rate, ok := t[Normalize(code)]
	return rate, ok
}

// Currencies returns the table's currency codes in sorted order.
func (t RateTable) Currencies() []string {
	return slices.Sorted(maps.Keys(t))
}

// Clone returns an independent copy.
func (t RateTable) Clone() RateTable {
	return maps.Clone(t)
}

// fallbackNGN is served when the upstream provider cannot be reached.
var fallbackNGN = map[string]string{
	"NGN": "1",
	"USD": "0.00065",
	"EUR": "0.0006",
	"GBP": "0.00051",
	"JPY": "0.1",
	"CAD": "0.00087",
	"AUD": "0.00098",
	"CHF": "0.00057",
	"CNY": "0.0047",
}

// FallbackRates returns the static rate table keyed to base.
func FallbackRates(base string) RateTable {
	raw := make(map[string]decimal.Decimal, len(fallbackNGN))
	for code, v := range fallbackNGN {
		raw[code] = decimal.RequireFromString(v)
	}
	table, err := normalize(raw, base)
	if err != nil {
		// base outside the static set; keep NGN terms
		table, _ = normalize(raw, DefaultBaseCurrency)
	}
	return table
}

// normalize uppercases codes, keeps only supported currencies with positive rates and
// rescales the table so that base maps to exactly 1.
func normalize(raw map[string]decimal.Decimal, base string) (RateTable, error) {
	base = Normalize(base)
	upper := make(map[string]decimal.Decimal, len(raw))
	for code, rate := range raw {
		upper[Normalize(code)] = rate
	}

	baseRate, ok := upper[base]
	if !ok || !baseRate.IsPositive() {
		return nil, fmt.Errorf("rate table has no usable entry for base %s", base)
	}

	table := make(RateTable, len(supportedCurrencies))
	for _, code := range supportedCurrencies {
		rate, ok := upper[code]
		if !ok || !rate.IsPositive() {
			continue
		}
		if !baseRate.Equal(decimal.NewFromInt(1)) {
			rate = rate.Div(baseRate)
		}
		table[code] = rate
	}
	table[base] = decimal.NewFromInt(1)
	return table, nil
}
