// internal/infrastructure/db/badger_repository_test.go
package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/repository"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTx(kind entity.TransactionKind, cur entity.Currency, amount int64) entity.Transaction {
	return entity.Transaction{
		ID:          "tx-" + string(kind),
		Kind:        kind,
		Currency:    cur,
		Amount:      decimal.NewFromInt(amount),
		RateApplied: decimal.NewFromInt(1),
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBadgerLedgerRepository(t *testing.T) {
	repo := NewBadgerLedgerRepository(openTestDB(t))
	ctx := context.Background()

	t.Run("Unknown user has an empty account", func(t *testing.T) {
		snap, err := repo.FindSnapshot(ctx, "nobody")
		require.NoError(t, err)
		assert.True(t, snap.Balance.IsZero())
		assert.Empty(t, snap.Transactions)
	})

	t.Run("Credit then exchange", func(t *testing.T) {
		_, err := repo.Apply(ctx, "u1", nil,
			entity.Balance{entity.PLN: decimal.NewFromInt(2000)},
			testTx(entity.KindDeposit, entity.PLN, 2000))
		require.NoError(t, err)

		snap, err := repo.Apply(ctx, "u1",
			entity.Balance{entity.PLN: decimal.NewFromInt(400)},
			entity.Balance{entity.USD: decimal.NewFromInt(100)},
			testTx(entity.KindBuy, entity.USD, 100))
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(1600).Equal(snap.Balance.Get(entity.PLN)))
		assert.True(t, decimal.NewFromInt(100).Equal(snap.Balance.Get(entity.USD)))
		assert.Len(t, snap.Transactions, 2)

		stored, err := repo.FindSnapshot(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1600).Equal(stored.Balance.Get(entity.PLN)))
		assert.Equal(t, entity.USD, stored.Transactions[1].Currency)
	})

	t.Run("Insufficient funds leaves the account untouched", func(t *testing.T) {
		_, err := repo.Apply(ctx, "u1",
			entity.Balance{entity.USD: decimal.NewFromInt(101)},
			entity.Balance{entity.PLN: decimal.NewFromInt(404)},
			testTx(entity.KindSell, entity.USD, 101))
		assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

		stored, err := repo.FindSnapshot(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(stored.Balance.Get(entity.USD)))
		assert.Len(t, stored.Transactions, 2)
	})

	t.Run("Concurrent credits are all applied", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Apply(ctx, "u2", nil,
					entity.Balance{entity.PLN: decimal.NewFromInt(10)},
					testTx(entity.KindDeposit, entity.PLN, 10))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		snap, err := repo.FindSnapshot(ctx, "u2")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(200).Equal(snap.Balance.Get(entity.PLN)))
	})

	t.Run("Device tokens", func(t *testing.T) {
		require.NoError(t, repo.StoreDeviceToken(ctx, "u1", "dev-a"))
		require.NoError(t, repo.StoreDeviceToken(ctx, "u1", "dev-b"))
		require.NoError(t, repo.StoreDeviceToken(ctx, "u1", "dev-a"))
		require.NoError(t, repo.StoreDeviceToken(ctx, "u10", "other"))

		tokens, err := repo.DeviceTokens(ctx, "u1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"dev-a", "dev-b"}, tokens)
	})
}

func TestBadgerRateRepository(t *testing.T) {
	repo := NewBadgerRateRepository(openTestDB(t), logger.NewNopLogger())
	ctx := context.Background()

	_, err := repo.Current(ctx)
	assert.ErrorIs(t, err, ErrNoRates)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{2, 0, 4, 1, 3} {
		table := entity.NewRateTable(base.AddDate(0, 0, n), map[entity.Currency]decimal.Decimal{
			entity.USD: decimal.NewFromInt(int64(4 + n)),
		})
		require.NoError(t, repo.StoreRates(ctx, table))
	}

	current, err := repo.Current(ctx)
	require.NoError(t, err)
	assert.True(t, base.AddDate(0, 0, 4).Equal(current.Date))
	rate, ok := current.Rate(entity.USD)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(8).Equal(rate))

	archive, err := repo.Archive(ctx, 3)
	require.NoError(t, err)
	require.Len(t, archive, 3)
	assert.True(t, base.AddDate(0, 0, 2).Equal(archive[0].Date))
	assert.True(t, base.AddDate(0, 0, 4).Equal(archive[2].Date))

	all, err := repo.Archive(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	assert.Error(t, repo.StoreRates(ctx, entity.RateTable{}))
}
