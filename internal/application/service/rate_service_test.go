// internal/application/service/rate_service_test.go
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/mocks"
)

func day(n int) time.Time {
	return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func usdTable(date time.Time, rate string) entity.RateTable {
	return entity.NewRateTable(date, map[entity.Currency]decimal.Decimal{
		entity.USD: decimal.RequireFromString(rate),
	})
}

func defaultTable() entity.RateTable {
	return entity.NewRateTable(time.Time{}, map[entity.Currency]decimal.Decimal{
		entity.USD: decimal.NewFromFloat(4.0),
		entity.EUR: decimal.NewFromFloat(4.3),
		entity.GBP: decimal.NewFromFloat(5.0),
		entity.CHF: decimal.NewFromFloat(4.5),
	})
}

func TestGetCurrentRates(t *testing.T) {
	ledger := new(mocks.MockLedgerAPI)
	svc := NewRateService(ledger, defaultTable(), logger.NewNopLogger(), nil)
	ctx := context.Background()

	t.Run("Successful fetch", func(t *testing.T) {
		ledger.On("GetRates", ctx).Return(usdTable(day(0), "3.97"), nil).Once()

		table, err := svc.GetCurrentRates(ctx)
		require.NoError(t, err)
		rate, _ := table.Rate(entity.USD)
		assert.Equal(t, "3.97", rate.String())
		ledger.AssertExpectations(t)
	})

	t.Run("Transport error", func(t *testing.T) {
		ledger.On("GetRates", ctx).Return(entity.RateTable{}, entity.NewNetworkError(errors.New("timeout"))).Once()

		_, err := svc.GetCurrentRates(ctx)
		assert.ErrorIs(t, err, entity.ErrRatesUnavailable)
		assert.ErrorIs(t, err, entity.ErrNetwork)
		ledger.AssertExpectations(t)
	})

	t.Run("Empty table", func(t *testing.T) {
		ledger.On("GetRates", ctx).Return(entity.RateTable{}, nil).Once()

		_, err := svc.GetCurrentRates(ctx)
		assert.ErrorIs(t, err, entity.ErrRatesUnavailable)
	})
}

func TestLoadRatesFallsBackToDefaults(t *testing.T) {
	ledger := new(mocks.MockLedgerAPI)
	svc := NewRateService(ledger, defaultTable(), logger.NewNopLogger(), nil)
	ctx := context.Background()

	ledger.On("GetRates", ctx).Return(entity.RateTable{}, errors.New("boom")).Once()

	table, stale := svc.LoadRates(ctx)
	assert.True(t, stale)
	assert.Equal(t, svc.DefaultRates(), table)
	assert.Equal(t, defaultTable(), table)

	ledger.On("GetRates", ctx).Return(usdTable(day(0), "4.1"), nil).Once()
	table, stale = svc.LoadRates(ctx)
	assert.False(t, stale)
	assert.Len(t, table.Rates, 1)

	// a single attempt per call
	ledger.AssertNumberOfCalls(t, "GetRates", 2)
}

func TestGetArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("Newest first, deduplicated and bounded", func(t *testing.T) {
		ledger := new(mocks.MockLedgerAPI)
		svc := NewRateService(ledger, defaultTable(), logger.NewNopLogger(), nil)

		var entries []entity.ArchiveEntry
		for _, n := range []int{3, 0, 5, 1, 4, 2} {
			entries = append(entries, entity.ArchiveEntry{Date: day(n), Table: usdTable(day(n), "4.0")})
		}
		// duplicate date
		entries = append(entries, entity.ArchiveEntry{Date: day(5), Table: usdTable(day(5), "4.5")})

		ledger.On("GetArchive", ctx).Return(entries, nil).Once()

		got := svc.GetArchive(ctx, 4)
		require.Len(t, got, 4)
		assert.Equal(t, day(5), got[0].Date)
		assert.Equal(t, day(4), got[1].Date)
		assert.Equal(t, day(2), got[3].Date)

		rate, _ := got[0].Table.Rate(entity.USD)
		assert.Equal(t, "4.5", rate.String())
	})

	t.Run("Default window", func(t *testing.T) {
		ledger := new(mocks.MockLedgerAPI)
		svc := NewRateService(ledger, defaultTable(), logger.NewNopLogger(), nil)

		var entries []entity.ArchiveEntry
		for n := 0; n < 45; n++ {
			entries = append(entries, entity.ArchiveEntry{Date: day(n), Table: usdTable(day(n), "4.0")})
		}
		ledger.On("GetArchive", ctx).Return(entries, nil).Once()

		assert.Len(t, svc.GetArchive(ctx, 0), DefaultArchiveWindowDays)
	})

	t.Run("Error yields empty archive", func(t *testing.T) {
		ledger := new(mocks.MockLedgerAPI)
		svc := NewRateService(ledger, defaultTable(), logger.NewNopLogger(), nil)
		ledger.On("GetArchive", ctx).Return(nil, errors.New("503")).Once()

		got := svc.GetArchive(ctx, 30)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("No retries", func(t *testing.T) {
		ledger := new(mocks.MockLedgerAPI)
		svc := NewRateService(ledger, defaultTable(), logger.NewNopLogger(), nil)
		ledger.On("GetArchive", mock.Anything).Return(nil, errors.New("503"))

		svc.GetArchive(ctx, 30)
		ledger.AssertNumberOfCalls(t, "GetArchive", 1)
	})
}
