package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/cache"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/metrics"
)

// ErrSuperseded is returned for a sync cycle whose result was discarded
// because a newer cycle was issued, the view closed, or the session ended.
var ErrSuperseded = errors.New("sync superseded")

// SyncStatus is the phase of the sync state
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
)

// SyncState is the value object views observe
type SyncState struct {
	Status   SyncStatus
	Sequence uint64
	Data     cache.Snapshot
	HasData  bool
	// Stale is set when the rates in Data are the built-in defaults
	Stale     bool
	Err       error
	UpdatedAt time.Time
}

// Gate reports whether a user is signed in
type Gate interface {
	Authenticated() bool
}

// SyncObserver receives sync state changes
type SyncObserver func(SyncState)

// SyncConfig bounds the derived data
type SyncConfig struct {
	ArchiveWindowDays int
	SeriesWindow      int
	// MaxAge is how long Current serves cached data without a new cycle
	MaxAge time.Duration
}

// SyncService fetches rates, archive and the user snapshot, derives the
// portfolio view data and publishes it to attached views.
type SyncService struct {
	rates      *RateService
	ledger     service.LedgerAPI
	aggregator *PortfolioAggregator
	snapshots  *cache.SnapshotCache
	cfg        SyncConfig
	logger     logger.Logger
	metrics    *metrics.Metrics
	group      singleflight.Group

	mu     sync.Mutex
	gate   Gate
	issued uint64
	epoch  uint64
	// mutations counts settled transactions; user fetches from before a
	// mutation are never shared with fetches issued after it
	mutations uint64
	state     SyncState
	views     map[*View]struct{}
}

// NewSyncService creates a sync engine
func NewSyncService(rates *RateService, ledger service.LedgerAPI, aggregator *PortfolioAggregator, snapshots *cache.SnapshotCache, cfg SyncConfig, log logger.Logger, m *metrics.Metrics) *SyncService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if snapshots == nil {
		snapshots = cache.NewSnapshotCache()
	}
	if cfg.ArchiveWindowDays <= 0 {
		cfg.ArchiveWindowDays = DefaultArchiveWindowDays
	}
	if cfg.SeriesWindow <= 0 {
		cfg.SeriesWindow = DefaultSeriesWindow
	}
	if cfg.MaxAge > 0 {
		snapshots.SetExpiration(cfg.MaxAge)
	}

	return &SyncService{
		rates:      rates,
		ledger:     ledger,
		aggregator: aggregator,
		snapshots:  snapshots,
		cfg:        cfg,
		logger:     log,
		metrics:    m,
		state:      SyncState{Status: SyncIdle},
		views:      make(map[*View]struct{}),
	}
}

// SetGate installs the session check consulted before every cycle
func (s *SyncService) SetGate(g Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gate = g
}

// State returns the current sync state
func (s *SyncService) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Snapshot returns the last synchronised data
func (s *SyncService) Snapshot() (cache.Snapshot, bool) {
	return s.snapshots.Get()
}

// Current returns the cached data, running a sync cycle first when it is
// missing or expired. A failed cycle still returns the previous data if any.
func (s *SyncService) Current(ctx context.Context) (cache.Snapshot, error) {
	if !s.snapshots.Expired() {
		snap, _ := s.snapshots.Get()
		return snap, nil
	}

	s.logger.Debug("Cached snapshot expired, resyncing", nil)
	_, err := s.Refresh(ctx)
	if err != nil && !errors.Is(err, ErrSuperseded) {
		if snap, ok := s.snapshots.Get(); ok {
			return snap, nil
		}
		return cache.Snapshot{}, err
	}

	snap, ok := s.snapshots.Get()
	if !ok {
		return cache.Snapshot{}, ErrSuperseded
	}
	return snap, nil
}

// Refresh runs one sync cycle
func (s *SyncService) Refresh(ctx context.Context) (SyncState, error) {
	return s.refresh(ctx, nil)
}

// Resync runs a sync cycle after a settled mutation. The snapshot the ledger
// returned for the mutation, when given, is published first so the cached
// balance reflects the mutation even if the cycle fails. A superseded cycle
// is not an error.
func (s *SyncService) Resync(ctx context.Context, settled *entity.UserSnapshot) error {
	s.mu.Lock()
	s.mutations++
	s.mu.Unlock()

	if settled != nil {
		s.seed(settled)
	}

	_, err := s.Refresh(ctx)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// seed rebuilds the cached snapshot around settled, keeping the cached rates
// and archive. Nothing is published when there is no cached data or no session.
func (s *SyncService) seed(settled *entity.UserSnapshot) {
	s.mu.Lock()
	prev, ok := s.snapshots.Get()
	if !ok || (s.gate != nil && !s.gate.Authenticated()) {
		s.mu.Unlock()
		return
	}
	s.issued++
	seq := s.issued
	s.snapshots.Put(s.build(seq, ratesResult{table: prev.Rates, stale: prev.RatesStale}, prev.Archive, settled))
	snap, _ := s.snapshots.Get()
	s.state = SyncState{
		Status:    SyncIdle,
		Sequence:  seq,
		Data:      snap,
		HasData:   true,
		Stale:     snap.RatesStale,
		UpdatedAt: snap.UpdatedAt,
	}
	state := s.state
	s.mu.Unlock()

	s.logger.Debug("Seeded snapshot from settled transaction", map[string]interface{}{
		"sequence": seq,
	})
	s.notify(state)
}

// Reset discards cached data and suppresses every cycle still in flight
func (s *SyncService) Reset() {
	s.mu.Lock()
	s.epoch++
	s.issued++
	s.state = SyncState{Status: SyncIdle, Sequence: s.issued}
	s.snapshots.Clear()
	state := s.state
	s.mu.Unlock()

	s.logger.Info("Sync state reset", map[string]interface{}{
		"sequence": state.Sequence,
	})
	s.notify(state)
}

// Attach registers an observer and returns its view
func (s *SyncService) Attach(observer SyncObserver) *View {
	v := &View{engine: s, observer: observer}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.views[v] = struct{}{}
	return v
}

type ratesResult struct {
	table entity.RateTable
	stale bool
}

func (s *SyncService) refresh(ctx context.Context, v *View) (SyncState, error) {
	started := time.Now()

	s.mu.Lock()
	if s.gate != nil && !s.gate.Authenticated() {
		s.mu.Unlock()
		return SyncState{}, entity.NewAuthError("not signed in", 0)
	}
	s.issued++
	seq, epoch, mutations := s.issued, s.epoch, s.mutations
	s.state.Status = SyncSyncing
	s.state.Sequence = seq
	syncing := s.state
	s.mu.Unlock()

	s.notify(syncing)

	var (
		rates   ratesResult
		archive []entity.ArchiveEntry
		user    *entity.UserSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		val, err := s.shared(gctx, "rates", epoch, func(ctx context.Context) (interface{}, error) {
			table, stale := s.rates.LoadRates(ctx)
			return ratesResult{table: table, stale: stale}, nil
		})
		if err != nil {
			return err
		}
		rates = val.(ratesResult)
		return nil
	})
	g.Go(func() error {
		val, err := s.shared(gctx, "archive", epoch, func(ctx context.Context) (interface{}, error) {
			return s.rates.GetArchive(ctx, s.cfg.ArchiveWindowDays), nil
		})
		if err != nil {
			return err
		}
		archive = val.([]entity.ArchiveEntry)
		return nil
	})
	g.Go(func() error {
		val, err := s.shared(gctx, fmt.Sprintf("user/%d", mutations), epoch, func(ctx context.Context) (interface{}, error) {
			return s.ledger.GetUser(ctx)
		})
		if err != nil {
			return err
		}
		user = val.(*entity.UserSnapshot)
		return nil
	})
	fetchErr := g.Wait()
	if fetchErr == nil && user == nil {
		fetchErr = entity.NewBusinessRuleError("empty user snapshot", 0)
	}

	state, err := s.commit(v, seq, epoch, started, fetchErr, func() cache.Snapshot {
		return s.build(seq, rates, archive, user)
	}, rates.stale)
	if err != nil {
		return state, err
	}

	s.logger.Debug("Sync completed", map[string]interface{}{
		"sequence":    seq,
		"stale_rates": rates.stale,
		"archive":     len(archive),
		"took_ms":     time.Since(started).Milliseconds(),
	})
	return state, nil
}

// commit publishes the result of cycle seq unless it was superseded. The
// view lock is held across the check so a concurrent Close wins or loses cleanly.
func (s *SyncService) commit(v *View, seq, epoch uint64, started time.Time, fetchErr error, build func() cache.Snapshot, stale bool) (SyncState, error) {
	if v != nil {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			s.discard(seq, started)
			return SyncState{}, ErrSuperseded
		}
	}

	s.mu.Lock()
	if seq != s.issued || epoch != s.epoch {
		s.mu.Unlock()
		if v != nil {
			v.mu.Unlock()
		}
		s.discard(seq, started)
		return SyncState{}, ErrSuperseded
	}

	if fetchErr != nil {
		s.state.Status = SyncError
		s.state.Err = fetchErr
	} else {
		s.snapshots.Put(build())
		snap, _ := s.snapshots.Get()
		s.state = SyncState{
			Status:    SyncIdle,
			Sequence:  seq,
			Data:      snap,
			HasData:   true,
			Stale:     stale,
			UpdatedAt: snap.UpdatedAt,
		}
	}
	state := s.state
	s.mu.Unlock()
	if v != nil {
		v.mu.Unlock()
	}

	if fetchErr != nil {
		s.metrics.SyncCompleted("error", time.Since(started))
		s.logger.Warn("Sync failed, keeping previous data", map[string]interface{}{
			"sequence": seq,
			"error":    fetchErr.Error(),
		})
		s.notify(state)
		return state, fetchErr
	}

	s.metrics.SyncCompleted("ok", time.Since(started))
	s.notify(state)
	return state, nil
}

// shared runs fn once for all callers asking for the same resource at the same time.
// The fetch itself outlives a cancelled caller so the other waiters still get a result.
func (s *SyncService) shared(ctx context.Context, resource string, epoch uint64, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	key := fmt.Sprintf("%s/%d", resource, epoch)
	detached := context.WithoutCancel(ctx)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.metrics.FetchShared(metricName(resource))
		}
		return res.Val, res.Err
	}
}

// metricName strips the generation suffix of a resource key
func metricName(resource string) string {
	if i := strings.IndexByte(resource, '/'); i >= 0 {
		return resource[:i]
	}
	return resource
}

func (s *SyncService) build(seq uint64, rates ratesResult, archive []entity.ArchiveEntry, user *entity.UserSnapshot) cache.Snapshot {
	balance := user.Balance.Clone(s.aggregator.Base())

	return cache.Snapshot{
		Balance:      balance,
		Rates:        rates.table,
		Archive:      archive,
		Transactions: user.Transactions,
		Slices:       s.aggregator.ComputeComposition(balance, rates.table),
		Series:       s.aggregator.ComputeAllSeries(archive, rates.table, s.cfg.SeriesWindow),
		RatesStale:   rates.stale,
		Sequence:     seq,
	}
}

func (s *SyncService) discard(seq uint64, started time.Time) {
	s.metrics.SyncCompleted("stale", time.Since(started))
	s.logger.Debug("Discarding superseded sync result", map[string]interface{}{
		"sequence": seq,
	})
}

func (s *SyncService) notify(state SyncState) {
	s.mu.Lock()
	views := make([]*View, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	for _, v := range views {
		v.deliver(state)
	}
}

// View is one observer's handle on the engine. After Close it receives no
// further states and its pending refreshes are discarded.
type View struct {
	engine   *SyncService
	observer SyncObserver

	mu         sync.Mutex
	closed     bool
	lastSeq    uint64
	delivering bool
	pending    *SyncState
}

// Refresh runs a sync cycle on behalf of this view
func (v *View) Refresh(ctx context.Context) (SyncState, error) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return SyncState{}, ErrSuperseded
	}

	return v.engine.refresh(ctx, v)
}

// State returns the engine's current state
func (v *View) State() SyncState {
	return v.engine.State()
}

// Close detaches the view. It may be called from inside a notification.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.engine.mu.Lock()
	delete(v.engine.views, v)
	v.engine.mu.Unlock()
}

// deliver hands state to the observer without holding the view lock, so the
// observer may call Refresh or Close. Observer calls never overlap: a state
// arriving during one is queued and only the newest queued state is delivered.
func (v *View) deliver(state SyncState) {
	v.mu.Lock()
	if v.observer == nil {
		v.mu.Unlock()
		return
	}
	if v.delivering {
		if v.pending == nil || state.Sequence >= v.pending.Sequence {
			v.pending = &state
		}
		v.mu.Unlock()
		return
	}
	v.delivering = true

	for {
		if !v.closed && state.Sequence >= v.lastSeq {
			v.lastSeq = state.Sequence
			v.mu.Unlock()
			v.observer(state)
			v.mu.Lock()
		}
		if v.pending == nil {
			break
		}
		state = *v.pending
		v.pending = nil
	}

	v.delivering = false
	v.mu.Unlock()
}
