package internal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/application/ledger"
	"github.com/damon-houk/kantor-sync/internal/application/service"
	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/api"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/auth"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/cache"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/db"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/handler"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/middleware"
)

type alwaysSignedIn struct{}

func (alwaysSignedIn) Authenticated() bool { return true }

func TestPerformance(t *testing.T) {
	// Skip in short mode or CI
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	// Setup test database
	dbPath, err := os.MkdirTemp("", "badger-perf-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(dbPath)

	badgerOpts := badger.DefaultOptions(dbPath).WithLogger(nil)
	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer badgerDB.Close()

	log := logger.NewNopLogger()
	ledgerService := ledger.NewLedgerService(
		db.NewBadgerLedgerRepository(badgerDB),
		db.NewBadgerRateRepository(badgerDB, log),
		ledger.Config{Base: entity.PLN, MinDeposit: decimal.NewFromInt(1000)},
		log,
	)

	ctx := context.Background()
	around := entity.NewRateTable(time.Time{}, map[entity.Currency]decimal.Decimal{
		entity.USD: decimal.NewFromInt(4),
		entity.EUR: decimal.NewFromFloat(4.3),
		entity.GBP: decimal.NewFromInt(5),
		entity.CHF: decimal.NewFromFloat(4.5),
	})
	if err := ledgerService.SeedRates(ctx, around, 30); err != nil {
		t.Fatalf("Failed to seed rates: %v", err)
	}

	// Performance test configuration
	numOperations := 200
	concurrency := 10
	opsPerWorker := numOperations / concurrency

	t.Run("Concurrent Deposits", func(t *testing.T) {
		startTime := time.Now()

		wg := sync.WaitGroup{}
		wg.Add(concurrency)

		for i := 0; i < concurrency; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < opsPerWorker; j++ {
					if _, err := ledgerService.Deposit(ctx, "shared", decimal.NewFromInt(1000)); err != nil {
						t.Errorf("Error depositing: %v", err)
					}
				}
			}()
		}

		wg.Wait()
		duration := time.Since(startTime)

		snap, err := ledgerService.Snapshot(ctx, "shared")
		if err != nil {
			t.Fatalf("Failed to read account: %v", err)
		}
		want := decimal.NewFromInt(int64(numOperations) * 1000)
		if !snap.Balance.Get(entity.PLN).Equal(want) {
			t.Errorf("Expected balance %s, got %s", want, snap.Balance.Get(entity.PLN))
		}
		if len(snap.Transactions) != numOperations {
			t.Errorf("Expected %d transactions, got %d", numOperations, len(snap.Transactions))
		}

		throughput := float64(numOperations) / duration.Seconds()
		t.Logf("Deposits: %d operations in %v (%.2f ops/sec)", numOperations, duration, throughput)
	})

	t.Run("Concurrent Exchanges", func(t *testing.T) {
		currencies := entity.ForeignCurrencies(entity.PLN)
		var rejected atomic.Int64

		startTime := time.Now()

		wg := sync.WaitGroup{}
		wg.Add(concurrency)

		for i := 0; i < concurrency; i++ {
			go func(workerID int) {
				defer wg.Done()

				user := fmt.Sprintf("trader-%d", workerID)
				if _, err := ledgerService.Deposit(ctx, user, decimal.NewFromInt(5000)); err != nil {
					t.Errorf("Error depositing: %v", err)
					return
				}

				rng := rand.New(rand.NewSource(int64(workerID)))
				for j := 0; j < opsPerWorker; j++ {
					cur := currencies[j%len(currencies)]
					kind := entity.KindBuy
					if j%3 == 2 {
						kind = entity.KindSell
					}
					amount := decimal.NewFromInt(int64(10 + rng.Intn(90)))

					_, err := ledgerService.Exchange(ctx, user, kind, cur, amount)
					if errors.Is(err, entity.ErrBusinessRule) {
						rejected.Add(1)
						continue
					}
					if err != nil {
						t.Errorf("Error exchanging: %v", err)
					}
				}

				snap, err := ledgerService.Snapshot(ctx, user)
				if err != nil {
					t.Errorf("Error reading account: %v", err)
					return
				}
				for cur, amt := range snap.Balance {
					if amt.IsNegative() {
						t.Errorf("Negative %s balance for %s: %s", cur, user, amt)
					}
				}
			}(i)
		}

		wg.Wait()
		duration := time.Since(startTime)

		throughput := float64(numOperations) / duration.Seconds()
		t.Logf("Exchanges: %d operations in %v (%.2f ops/sec, %d rejected)",
			numOperations, duration, throughput, rejected.Load())
	})

	t.Run("Refresh Storm", func(t *testing.T) {
		router := mux.NewRouter()
		handler.NewLedgerHandler(ledgerService, log).RegisterRoutes(router,
			middleware.BearerAuth(auth.NewUserResolver("", nil), log))
		server := httptest.NewServer(router)
		defer server.Close()

		client := api.NewLedgerAPIClient(server.URL, nil, log, nil)
		client.SetTokenSource(auth.NewStaticTokenSource("shared"))

		rates := service.NewRateService(client, around, log, nil)
		aggregator := service.NewPortfolioAggregator(service.AggregatorConfig{Base: entity.PLN})
		syncService := service.NewSyncService(rates, client, aggregator, cache.NewSnapshotCache(),
			service.SyncConfig{ArchiveWindowDays: 30, SeriesWindow: 14}, log, nil)
		syncService.SetGate(alwaysSignedIn{})

		var settled, superseded atomic.Int64
		startTime := time.Now()

		wg := sync.WaitGroup{}
		wg.Add(concurrency)

		for i := 0; i < concurrency; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < opsPerWorker; j++ {
					_, err := syncService.Refresh(ctx)
					switch {
					case err == nil:
						settled.Add(1)
					case errors.Is(err, service.ErrSuperseded):
						superseded.Add(1)
					default:
						t.Errorf("Refresh failed: %v", err)
					}
				}
			}()
		}

		wg.Wait()
		duration := time.Since(startTime)

		state := syncService.State()
		if !state.HasData || state.Status != service.SyncIdle {
			t.Errorf("Expected idle state with data, got %s (has data: %v)", state.Status, state.HasData)
		}
		if settled.Load() == 0 {
			t.Error("Expected at least one refresh to settle")
		}

		throughput := float64(numOperations) / duration.Seconds()
		t.Logf("Refreshes: %d cycles in %v (%.2f cycles/sec, %d settled, %d superseded)",
			numOperations, duration, throughput, settled.Load(), superseded.Load())
	})
}
