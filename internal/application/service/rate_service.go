// Package service internal/application/service/rate_service.go
package service

import (
	"context"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/metrics"
)

// DefaultArchiveWindowDays bounds the archive when callers pass no window
const DefaultArchiveWindowDays = 30

// RateService fetches current rates and the rate archive from the ledger.
// It never retries; a failed call is reported once and the caller decides.
type RateService struct {
	ledger   service.LedgerAPI
	defaults entity.RateTable
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// NewRateService creates a rate service. defaults is the placeholder table used in degraded mode.
func NewRateService(ledger service.LedgerAPI, defaults entity.RateTable, log logger.Logger, m *metrics.Metrics) *RateService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &RateService{
		ledger:   ledger,
		defaults: defaults,
		logger:   log,
		metrics:  m,
	}
}

// GetCurrentRates retrieves the current rate table. Any failure, including an
// empty table, is reported as RatesUnavailable.
func (s *RateService) GetCurrentRates(ctx context.Context) (entity.RateTable, error) {
	table, err := s.ledger.GetRates(ctx)
	if err != nil {
		return entity.RateTable{}, &entity.Error{Kind: entity.KindRatesUnavailable, Err: err}
	}

	if table.IsEmpty() {
		return entity.RateTable{}, &entity.Error{Kind: entity.KindRatesUnavailable, Message: "empty rate table"}
	}

	return table, nil
}

// DefaultRates returns the built-in placeholder table
func (s *RateService) DefaultRates() entity.RateTable {
	return s.defaults
}

// LoadRates returns the current rates, or the default table and stale=true when they are unavailable
func (s *RateService) LoadRates(ctx context.Context) (table entity.RateTable, stale bool) {
	table, err := s.GetCurrentRates(ctx)
	if err != nil {
		s.metrics.DegradedRead("rates")
		s.logger.Warn("Rates unavailable, using default table", map[string]interface{}{
			"error": err.Error(),
		})
		return s.DefaultRates(), true
	}

	return table, false
}

// GetArchive returns at most windowDays archive entries, newest first, one per
// calendar date. A failed fetch yields an empty archive.
func (s *RateService) GetArchive(ctx context.Context, windowDays int) []entity.ArchiveEntry {
	if windowDays <= 0 {
		windowDays = DefaultArchiveWindowDays
	}

	entries, err := s.ledger.GetArchive(ctx)
	if err != nil {
		s.metrics.DegradedRead("archive")
		s.logger.Warn("Archive unavailable", map[string]interface{}{
			"error": (&entity.Error{Kind: entity.KindArchiveUnavailable, Err: err}).Error(),
		})
		return []entity.ArchiveEntry{}
	}

	ascending := entity.NormalizeArchive(entries)
	if len(ascending) > windowDays {
		ascending = ascending[len(ascending)-windowDays:]
	}

	newestFirst := make([]entity.ArchiveEntry, len(ascending))
	for i, e := range ascending {
		newestFirst[len(ascending)-1-i] = e
	}

	s.logger.Debug("Archive loaded", map[string]interface{}{
		"entries":     len(newestFirst),
		"window_days": windowDays,
	})

	return newestFirst
}
