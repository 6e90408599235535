package entity

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is one of the currencies supported by the exchange ledger
type Currency int

const (
	PLN Currency = iota
	USD
	EUR
	GBP
	CHF

	currencyCount
)

// DefaultBaseCurrency is the currency deposits and valuations are denominated in
const DefaultBaseCurrency = PLN

// CurrencyInfo holds the display metadata of a currency
type CurrencyInfo struct {
	Code  string
	Name  string
	Color string
	Flag  string
}

var currencyInfo = [...]CurrencyInfo{
	PLN: {Code: "PLN", Name: "Polish zloty", Color: "#00d4ff", Flag: "pl.png"},
	USD: {Code: "USD", Name: "US dollar", Color: "#ff6b6b", Flag: "usd.png"},
	EUR: {Code: "EUR", Name: "Euro", Color: "#4ecdc4", Flag: "eur.png"},
	GBP: {Code: "GBP", Name: "British pound", Color: "#ffe66d", Flag: "gbp.png"},
	CHF: {Code: "CHF", Name: "Swiss franc", Color: "#95e1d3", Flag: "chf.png"},
}

// Both conversions overflow at compile time unless currencyInfo has exactly
// one entry per Currency.
const (
	_ = uint(len(currencyInfo) - int(currencyCount))
	_ = uint(int(currencyCount) - len(currencyInfo))
)

// Currencies returns every supported currency in declaration order
func Currencies() []Currency {
	all := make([]Currency, 0, currencyCount)
	for c := Currency(0); c < currencyCount; c++ {
		all = append(all, c)
	}
	return all
}

// ForeignCurrencies returns every supported currency except base
func ForeignCurrencies(base Currency) []Currency {
	foreign := make([]Currency, 0, currencyCount-1)
	for _, c := range Currencies() {
		if c != base {
			foreign = append(foreign, c)
		}
	}
	return foreign
}

// ParseCurrency resolves an ISO 4217 code to a supported currency
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for c := Currency(0); c < currencyCount; c++ {
		if currencyInfo[c].Code == code {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unsupported currency: %q", code)
}

// Valid reports whether c is a member of the enumeration
func (c Currency) Valid() bool {
	return c >= 0 && c < currencyCount
}

// Info returns the display metadata of the currency
func (c Currency) Info() CurrencyInfo {
	if !c.Valid() {
		return CurrencyInfo{Code: "???", Color: "#888888"}
	}
	return currencyInfo[c]
}

// String returns the ISO code
func (c Currency) String() string {
	return c.Info().Code
}

// MarshalText lets Currency be used as a JSON value and map key
func (c Currency) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid currency: %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses an ISO code
func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Format renders amount with the currency symbol and minor-unit precision
func (c Currency) Format(amount decimal.Decimal) string {
	cur := money.GetCurrency(c.String())
	if cur == nil {
		return amount.StringFixed(2) + " " + c.String()
	}

	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), c.String()).Display()
}
