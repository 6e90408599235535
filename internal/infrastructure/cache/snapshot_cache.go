package cache

import (
	"sync"
	"time"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// Snapshot is the engine's read-only copy of the last synchronised portfolio
type Snapshot struct {
	Balance      entity.Balance
	Rates        entity.RateTable
	Archive      []entity.ArchiveEntry // newest first
	Transactions []entity.Transaction
	Slices       []entity.PortfolioSlice
	Series       map[entity.Currency][]float64
	// RatesStale is set when Rates holds the built-in default table
	RatesStale bool
	Sequence   uint64
	UpdatedAt  time.Time
}

// SnapshotCache provides a thread-safe in-memory holder for the last snapshot.
// It is never persisted.
type SnapshotCache struct {
	snap       *Snapshot
	expiration time.Duration
	mutex      sync.RWMutex
}

// NewSnapshotCache creates an empty cache
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		expiration: 15 * time.Minute,
	}
}

// Get returns the cached snapshot, if any
func (c *SnapshotCache) Get() (Snapshot, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}

// Put replaces the cached snapshot
func (c *SnapshotCache) Put(snap Snapshot) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	c.snap = &snap
}

// Clear discards the cached snapshot
func (c *SnapshotCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.snap = nil
}

// SetExpiration sets the age after which the snapshot is reported expired
func (c *SnapshotCache) SetExpiration(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.expiration = duration
}

// Expired reports whether the snapshot is missing or older than the expiration
func (c *SnapshotCache) Expired() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.snap == nil || time.Since(c.snap.UpdatedAt) > c.expiration
}
