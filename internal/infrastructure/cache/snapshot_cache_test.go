package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

func TestSnapshotCache(t *testing.T) {
	cache := NewSnapshotCache()

	// Test initial state
	_, ok := cache.Get()
	assert.False(t, ok)
	assert.True(t, cache.Expired())

	// Test storing and retrieving
	snap := Snapshot{
		Balance:  entity.Balance{entity.PLN: decimal.NewFromInt(10000)},
		Sequence: 3,
	}
	cache.Put(snap)

	got, ok := cache.Get()
	assert.True(t, ok)
	assert.Equal(t, uint64(3), got.Sequence)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.False(t, cache.Expired())
	assert.True(t, decimal.NewFromInt(10000).Equal(got.Balance.Get(entity.PLN)))

	// Test expiration
	cache.SetExpiration(10 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, cache.Expired())

	// Test clearing
	cache.SetExpiration(time.Hour)
	cache.Put(snap)
	cache.Clear()
	_, ok = cache.Get()
	assert.False(t, ok)
}
