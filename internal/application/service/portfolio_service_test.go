package service

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

func newTestAggregator() *PortfolioAggregator {
	return NewPortfolioAggregator(AggregatorConfig{
		Base:              entity.PLN,
		FallbackRate:      decimal.NewFromFloat(4.0),
		DefaultBaseAmount: decimal.NewFromInt(10000),
	})
}

func sumPercent(slices []entity.PortfolioSlice) float64 {
	total := 0.0
	for _, s := range slices {
		total += s.PercentageOfTotal
	}
	return total
}

func TestComputeComposition(t *testing.T) {
	agg := newTestAggregator()

	t.Run("Zero holdings are filtered", func(t *testing.T) {
		balance := entity.Balance{
			entity.PLN: decimal.NewFromInt(10000),
			entity.USD: decimal.Zero,
		}
		rates := usdTable(day(0), "4.0")

		slices := agg.ComputeComposition(balance, rates)
		require.Len(t, slices, 1)
		assert.Equal(t, entity.PLN, slices[0].Currency)
		assert.True(t, decimal.NewFromInt(10000).Equal(slices[0].Amount))
		assert.True(t, decimal.NewFromInt(10000).Equal(slices[0].ValueInBaseCurrency))
		assert.Equal(t, 100.0, slices[0].PercentageOfTotal)
		assert.False(t, slices[0].Synthetic)
	})

	t.Run("Mixed holdings", func(t *testing.T) {
		balance := entity.Balance{
			entity.PLN: decimal.NewFromInt(2000),
			entity.USD: decimal.NewFromInt(500),
			entity.EUR: decimal.NewFromInt(100),
		}
		rates := entity.NewRateTable(day(0), map[entity.Currency]decimal.Decimal{
			entity.USD: decimal.NewFromInt(4),
			entity.EUR: decimal.NewFromInt(5),
		})

		slices := agg.ComputeComposition(balance, rates)
		require.Len(t, slices, 3)

		// declaration order, base first
		assert.Equal(t, entity.PLN, slices[0].Currency)
		assert.Equal(t, entity.USD, slices[1].Currency)
		assert.Equal(t, entity.EUR, slices[2].Currency)

		// total = 2000 + 2000 + 500 = 4500
		assert.InDelta(t, 44.444, slices[0].PercentageOfTotal, 0.001)
		assert.InDelta(t, 44.444, slices[1].PercentageOfTotal, 0.001)
		assert.InDelta(t, 11.111, slices[2].PercentageOfTotal, 0.001)
		assert.InDelta(t, 100, sumPercent(slices), 0.1)
	})

	t.Run("Missing rate uses fallback", func(t *testing.T) {
		balance := entity.Balance{entity.GBP: decimal.NewFromInt(10)}
		slices := agg.ComputeComposition(balance, entity.RateTable{})

		require.Len(t, slices, 1)
		assert.True(t, decimal.NewFromInt(40).Equal(slices[0].ValueInBaseCurrency))
	})

	t.Run("Empty balance yields placeholder slice", func(t *testing.T) {
		for _, balance := range []entity.Balance{
			nil,
			{},
			{entity.PLN: decimal.Zero, entity.USD: decimal.Zero},
		} {
			slices := agg.ComputeComposition(balance, usdTable(day(0), "4.0"))
			require.Len(t, slices, 1)
			assert.Equal(t, entity.PLN, slices[0].Currency)
			assert.Equal(t, 100.0, slices[0].PercentageOfTotal)
			assert.True(t, decimal.NewFromInt(10000).Equal(slices[0].Amount))
			assert.True(t, slices[0].Synthetic)
		}
	})
}

func TestComputeCompositionPercentagesSumTo100(t *testing.T) {
	agg := newTestAggregator()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		balance := entity.Balance{}
		rates := map[entity.Currency]decimal.Decimal{}
		for _, c := range entity.Currencies() {
			if rng.Intn(3) > 0 {
				balance[c] = decimal.NewFromFloat(rng.Float64() * 1e6).Round(2)
			}
			if rng.Intn(4) > 0 {
				rates[c] = decimal.NewFromFloat(0.01 + rng.Float64()*10).Round(4)
			}
		}

		slices := agg.ComputeComposition(balance, entity.NewRateTable(day(0), rates))
		assert.InDelta(t, 100, sumPercent(slices), 0.5)
		for _, s := range slices {
			assert.False(t, s.Amount.IsNegative())
		}
	}
}

func TestComputeSeries(t *testing.T) {
	agg := newTestAggregator()
	current := usdTable(day(0), "4.2")

	archiveOf := func(days ...int) []entity.ArchiveEntry {
		var out []entity.ArchiveEntry
		for _, n := range days {
			out = append(out, entity.ArchiveEntry{
				Date:  day(n),
				Table: usdTable(day(n), decimal.NewFromFloat(3.9).Add(decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(100))).String()),
			})
		}
		return out
	}

	t.Run("Length is always the window", func(t *testing.T) {
		for _, n := range []int{0, 1, 13, 14, 30} {
			days := make([]int, n)
			for i := range days {
				days[i] = i
			}
			series := agg.ComputeSeries(archiveOf(days...), current, entity.USD, 14)
			assert.Len(t, series, 14, "archive of %d entries", n)
		}
	})

	t.Run("Five days padded to fourteen", func(t *testing.T) {
		// unordered on the wire
		series := agg.ComputeSeries(archiveOf(4, 0, 3, 1, 2), current, entity.USD, 14)
		require.Len(t, series, 14)

		for i := 0; i < 9; i++ {
			assert.Equal(t, 4.2, series[i], "padding at %d", i)
		}
		assert.Equal(t, []float64{3.9, 3.91, 3.92, 3.93, 3.94}, series[9:])
	})

	t.Run("Keeps the most recent entries", func(t *testing.T) {
		days := make([]int, 20)
		for i := range days {
			days[i] = i
		}
		series := agg.ComputeSeries(archiveOf(days...), current, entity.USD, 14)
		assert.Equal(t, 3.96, series[0])
		assert.Equal(t, 4.09, series[13])
	})

	t.Run("Missing quote uses current then fallback", func(t *testing.T) {
		archive := []entity.ArchiveEntry{
			{Date: day(0), Table: entity.NewRateTable(day(0), nil)},
		}
		series := agg.ComputeSeries(archive, current, entity.USD, 3)
		assert.Equal(t, []float64{4.2, 4.2, 4.2}, series)

		series = agg.ComputeSeries(archive, current, entity.CHF, 3)
		assert.Equal(t, []float64{4.0, 4.0, 4.0}, series)
	})

	t.Run("Values are rounded", func(t *testing.T) {
		archive := []entity.ArchiveEntry{{Date: day(0), Table: usdTable(day(0), "4.123456")}}
		series := agg.ComputeSeries(archive, current, entity.USD, 1)
		assert.Equal(t, []float64{4.1235}, series)
	})

	t.Run("Non-positive window uses the default", func(t *testing.T) {
		assert.Len(t, agg.ComputeSeries(nil, current, entity.USD, 0), DefaultSeriesWindow)
	})

	t.Run("All series", func(t *testing.T) {
		all := agg.ComputeAllSeries(archiveOf(0, 1), current, 5)
		assert.Len(t, all, 4)
		assert.NotContains(t, all, entity.PLN)
		for _, s := range all {
			assert.Len(t, s, 5)
		}
	})
}

func TestSummarizeSeries(t *testing.T) {
	summary := SummarizeSeries([]float64{4.0, 4.4, 3.8, 4.2})
	assert.Equal(t, 3.8, summary.Min)
	assert.Equal(t, 4.4, summary.Max)
	assert.InDelta(t, 4.1, summary.Mean, 1e-9)
	assert.Equal(t, 4.2, summary.Last)
	assert.InDelta(t, 5.0, summary.ChangePercent, 1e-9)

	assert.Equal(t, SeriesSummary{}, SummarizeSeries(nil))
	assert.False(t, math.IsNaN(SummarizeSeries([]float64{0, 1}).ChangePercent))
}

func TestSeriesIgnoresTimeOfDay(t *testing.T) {
	agg := newTestAggregator()
	morning := day(0).Add(8 * time.Hour)
	evening := day(0).Add(20 * time.Hour)
	archive := []entity.ArchiveEntry{
		{Date: morning, Table: usdTable(morning, "4.0")},
		{Date: evening, Table: usdTable(evening, "4.1")},
	}
	// one calendar date, one point
	series := agg.ComputeSeries(archive, usdTable(day(0), "4.5"), entity.USD, 2)
	assert.Equal(t, 4.5, series[0])
}
