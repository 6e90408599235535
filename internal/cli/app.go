// Package cli implements the kantor command line client
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/application/service"
	"github.com/damon-houk/kantor-sync/internal/config"
	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/api"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/auth"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/cache"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/metrics"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/notify"
)

// App is the sync engine assembled from configuration
type App struct {
	cfg       *config.Config
	logger    logger.Logger
	client    *api.LedgerAPIClient
	sync      *service.SyncService
	gate      *service.SessionGate
	executor  *service.TransactionExecutor
	registrar *notify.DeviceRegistrar

	cancel context.CancelFunc
	done   chan error
}

// NewApp wires the ledger client, sync engine, session gate and executor
func NewApp(cfg *config.Config, log logger.Logger, reg prometheus.Registerer) *App {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	client := api.NewLedgerAPIClient(cfg.Ledger.BaseURL, &http.Client{Timeout: cfg.Ledger.Timeout}, log, m)

	p := cfg.Portfolio
	rates := service.NewRateService(client, p.DefaultRateTable(), log, m)
	aggregator := service.NewPortfolioAggregator(service.AggregatorConfig{
		Base:              p.Base(),
		FallbackRate:      decimal.NewFromFloat(p.FallbackRate),
		DefaultBaseAmount: decimal.NewFromFloat(p.DefaultBaseAmount),
	})
	syncService := service.NewSyncService(rates, client, aggregator, cache.NewSnapshotCache(), service.SyncConfig{
		ArchiveWindowDays: p.ArchiveWindowDays,
		SeriesWindow:      p.SeriesWindow,
		MaxAge:            p.SnapshotMaxAge,
	}, log, m)

	gate := service.NewSessionGate(client, syncService, log)
	syncService.SetGate(gate)

	registrar := notify.NewDeviceRegistrar(client, cfg.Ledger.DeviceToken, log)
	gate.OnSignIn(registrar.OnSignIn)

	executor := service.NewTransactionExecutor(client, syncService, entity.DepositPolicy{
		Base:       p.Base(),
		MinDeposit: decimal.NewFromFloat(p.MinDeposit),
	}, log, m)
	executor.Observe(func(from, to service.ExecutorState) {
		log.Debug("Transaction state changed", map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		})
	})

	return &App{
		cfg:       cfg,
		logger:    log,
		client:    client,
		sync:      syncService,
		gate:      gate,
		executor:  executor,
		registrar: registrar,
	}
}

// SignIn starts the session for token and returns the state of the initial
// sync cycle the session gate runs on sign-in.
func (a *App) SignIn(ctx context.Context, token string) (service.SyncState, error) {
	if _, err := auth.NewStaticTokenSource(token).Token(ctx); err != nil {
		return service.SyncState{}, err
	}
	if a.cancel != nil {
		return service.SyncState{}, errors.New("already signed in")
	}

	settled := make(chan service.SyncState, 1)
	view := a.sync.Attach(func(s service.SyncState) {
		if s.Status == service.SyncError || (s.Status == service.SyncIdle && s.HasData) {
			select {
			case settled <- s:
			default:
			}
		}
	})
	defer view.Close()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.done = make(chan error, 1)

	go func() {
		a.done <- a.gate.Run(runCtx, auth.NewStaticProvider(token))
	}()

	if err := a.gate.WaitFor(ctx, service.SessionAuthenticated); err != nil {
		return service.SyncState{}, fmt.Errorf("sign-in: %w", err)
	}

	select {
	case <-ctx.Done():
		return service.SyncState{}, fmt.Errorf("initial sync: %w", ctx.Err())
	case state := <-settled:
		if state.Status == service.SyncError {
			return state, state.Err
		}
		return state, nil
	}
}

// Snapshot returns the synchronised portfolio, resyncing when it has expired
func (a *App) Snapshot(ctx context.Context) (cache.Snapshot, error) {
	snap, err := a.sync.Current(ctx)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("sync failed: %s", entity.UserMessage(err))
	}
	return snap, nil
}

// Executor returns the transaction executor
func (a *App) Executor() *service.TransactionExecutor {
	return a.executor
}

// Close ends the session and waits for background work
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		if err := <-a.done; err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("Session ended with error", map[string]interface{}{
				"error": err.Error(),
			})
		}
		a.cancel = nil
	}
	a.registrar.Wait()
}
