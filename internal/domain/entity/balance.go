package entity

import "github.com/shopspring/decimal"

// Balance maps each held currency to a non-negative amount
type Balance map[Currency]decimal.Decimal

// Get returns the amount held in currency, zero when absent
func (b Balance) Get(c Currency) decimal.Decimal {
	if amt, ok := b[c]; ok {
		return amt
	}
	return decimal.Zero
}

// Clone returns a copy that always carries the base currency
func (b Balance) Clone(base Currency) Balance {
	out := make(Balance, len(b)+1)
	for c, amt := range b {
		out[c] = amt
	}
	if _, ok := out[base]; !ok {
		out[base] = decimal.Zero
	}
	return out
}

// IsZero reports whether nothing is held in any currency
func (b Balance) IsZero() bool {
	for _, amt := range b {
		if !amt.IsZero() {
			return false
		}
	}
	return true
}
