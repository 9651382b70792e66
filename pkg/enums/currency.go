package enums

import (
	"fmt"
	"strings"
)

// Currency represents supported monetary denominations, lowercase to match
// the payment gateway's wire format.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"
	CurrencyCAD Currency = "cad"
)

var currencies = map[Currency]struct{}{
	CurrencyUSD: {},
	CurrencyEUR: {},
	CurrencyGBP: {},
	CurrencyCAD: {},
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	_, ok := currencies[c]
	return ok
}

// ParseCurrency validates a raw string case-insensitively.
func ParseCurrency(value string) (Currency, error) {
	currency := Currency(strings.ToLower(strings.TrimSpace(value)))
	if !currency.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return currency, nil
}
