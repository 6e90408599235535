package service

import (
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// DefaultSeriesWindow is the number of points in a rate series
const DefaultSeriesWindow = 14

// seriesPrecision is the number of decimal places kept in series values
const seriesPrecision = 4

// AggregatorConfig holds the fallback values used by the aggregator
type AggregatorConfig struct {
	Base entity.Currency
	// FallbackRate values a currency the rate table does not quote
	FallbackRate decimal.Decimal
	// DefaultBaseAmount is the amount of the placeholder slice of an empty portfolio
	DefaultBaseAmount decimal.Decimal
}

// PortfolioAggregator derives display data from balances and rates. It has no
// state and no side effects.
type PortfolioAggregator struct {
	cfg AggregatorConfig
}

// NewPortfolioAggregator creates an aggregator
func NewPortfolioAggregator(cfg AggregatorConfig) *PortfolioAggregator {
	if !cfg.FallbackRate.IsPositive() {
		cfg.FallbackRate = decimal.NewFromInt(4)
	}
	return &PortfolioAggregator{cfg: cfg}
}

// Base returns the base currency
func (a *PortfolioAggregator) Base() entity.Currency {
	return a.cfg.Base
}

// rateFor returns the base-currency rate of c, falling back when the table has none
func (a *PortfolioAggregator) rateFor(c entity.Currency, rates entity.RateTable) decimal.Decimal {
	if c == a.cfg.Base {
		return decimal.NewFromInt(1)
	}
	if r, ok := rates.Rate(c); ok {
		return r
	}
	return a.cfg.FallbackRate
}

// ComputeComposition values every held currency in the base currency and
// returns one slice per non-zero holding, in currency declaration order.
// An empty or all-zero balance yields a single placeholder base slice at 100%.
func (a *PortfolioAggregator) ComputeComposition(balance entity.Balance, rates entity.RateTable) []entity.PortfolioSlice {
	if balance.IsZero() {
		return a.placeholder()
	}

	slices := make([]entity.PortfolioSlice, 0, len(balance))
	total := decimal.Zero

	for _, c := range entity.Currencies() {
		amt := balance.Get(c)
		if !amt.IsPositive() {
			continue
		}
		value := amt.Mul(a.rateFor(c, rates))
		total = total.Add(value)
		slices = append(slices, entity.PortfolioSlice{
			Currency:            c,
			Amount:              amt,
			ValueInBaseCurrency: value,
		})
	}

	if len(slices) == 0 || !total.IsPositive() {
		return a.placeholder()
	}

	hundred := decimal.NewFromInt(100)
	for i := range slices {
		slices[i].PercentageOfTotal = slices[i].ValueInBaseCurrency.Div(total).Mul(hundred).InexactFloat64()
	}

	return slices
}

// placeholder is the sample slice shown for an empty portfolio
func (a *PortfolioAggregator) placeholder() []entity.PortfolioSlice {
	return []entity.PortfolioSlice{{
		Currency:            a.cfg.Base,
		Amount:              a.cfg.DefaultBaseAmount,
		ValueInBaseCurrency: a.cfg.DefaultBaseAmount,
		PercentageOfTotal:   100,
		Synthetic:           true,
	}}
}

// ComputeSeries returns exactly windowSize rates of currency, oldest first,
// taken from the most recent archive entries. Entries without a quote use the
// current rate, then the fallback rate. Short archives are left-padded.
func (a *PortfolioAggregator) ComputeSeries(archive []entity.ArchiveEntry, current entity.RateTable, currency entity.Currency, windowSize int) []float64 {
	if windowSize <= 0 {
		windowSize = DefaultSeriesWindow
	}

	ascending := entity.NormalizeArchive(archive)
	if len(ascending) > windowSize {
		ascending = ascending[len(ascending)-windowSize:]
	}

	pad := a.rateFor(currency, current).Round(seriesPrecision).InexactFloat64()

	series := make([]float64, 0, windowSize)
	for i := len(ascending); i < windowSize; i++ {
		series = append(series, pad)
	}

	for _, entry := range ascending {
		rate, ok := entry.Table.Rate(currency)
		if !ok || currency == a.cfg.Base {
			rate = a.rateFor(currency, current)
		}
		series = append(series, rate.Round(seriesPrecision).InexactFloat64())
	}

	return series
}

// ComputeAllSeries returns the series of every foreign currency
func (a *PortfolioAggregator) ComputeAllSeries(archive []entity.ArchiveEntry, current entity.RateTable, windowSize int) map[entity.Currency][]float64 {
	out := make(map[entity.Currency][]float64)
	for _, c := range entity.ForeignCurrencies(a.cfg.Base) {
		out[c] = a.ComputeSeries(archive, current, c, windowSize)
	}
	return out
}

// SeriesSummary describes a rate series for chart captions
type SeriesSummary struct {
	Min           float64
	Max           float64
	Mean          float64
	Last          float64
	ChangePercent float64
}

// SummarizeSeries computes min, max, mean and the first-to-last change of series
func SummarizeSeries(series []float64) SeriesSummary {
	if len(series) == 0 {
		return SeriesSummary{}
	}

	data := stats.Float64Data(series)
	lo, _ := data.Min()
	hi, _ := data.Max()
	avg, _ := data.Mean()

	summary := SeriesSummary{
		Min:  lo,
		Max:  hi,
		Mean: avg,
		Last: series[len(series)-1],
	}
	if first := series[0]; first != 0 {
		summary.ChangePercent = (summary.Last - first) / first * 100
	}

	return summary
}
