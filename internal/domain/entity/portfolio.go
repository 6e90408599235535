package entity

import "github.com/shopspring/decimal"

// PortfolioSlice is one currency's share of total portfolio value
type PortfolioSlice struct {
	Currency            Currency
	Amount              decimal.Decimal
	ValueInBaseCurrency decimal.Decimal
	PercentageOfTotal   float64
	// Synthetic marks the placeholder slice shown when the portfolio is empty
	Synthetic bool
}

// Info returns the display metadata of the slice's currency
func (s PortfolioSlice) Info() CurrencyInfo {
	return s.Currency.Info()
}
