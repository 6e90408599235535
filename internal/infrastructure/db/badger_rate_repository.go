package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

const ratesPrefix = "rates:"

// ErrNoRates is returned when no rate table has been stored yet
var ErrNoRates = errors.New("no rates stored")

// BadgerRateRepository implements the rate repository interface using BadgerDB.
// Tables are keyed by calendar date so lexical key order is date order.
type BadgerRateRepository struct {
	db     *badger.DB
	logger logger.Logger
}

// NewBadgerRateRepository creates a new BadgerDB rate repository
func NewBadgerRateRepository(db *badger.DB, log logger.Logger) *BadgerRateRepository {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &BadgerRateRepository{db: db, logger: log}
}

// StoreRates saves a rate table under its date
func (r *BadgerRateRepository) StoreRates(ctx context.Context, table entity.RateTable) error {
	if table.Date.IsZero() {
		return errors.New("rate table has no date")
	}

	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal rate table: %w", err)
	}

	key := ratesPrefix + table.Date.Format(entity.DateLayout)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store rate table: %w", err)
	}

	r.logger.Debug("Rate table stored", map[string]interface{}{
		"date":  table.Date.Format(entity.DateLayout),
		"rates": len(table.Rates),
	})
	return nil
}

// Current returns the most recent rate table
func (r *BadgerRateRepository) Current(ctx context.Context) (entity.RateTable, error) {
	var table entity.RateTable
	found := false

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(ratesPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts from the first key <= the seek key
		it.Seek([]byte(ratesPrefix + "\xff"))
		if !it.ValidForPrefix([]byte(ratesPrefix)) {
			return nil
		}

		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &table)
		})
	})
	if err != nil {
		return entity.RateTable{}, fmt.Errorf("failed to read current rates: %w", err)
	}
	if !found {
		return entity.RateTable{}, ErrNoRates
	}

	return table, nil
}

// Archive returns up to windowDays most recent tables, oldest first
func (r *BadgerRateRepository) Archive(ctx context.Context, windowDays int) ([]entity.ArchiveEntry, error) {
	entries := []entity.ArchiveEntry{}

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ratesPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var table entity.RateTable
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &table)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entity.ArchiveEntry{Date: table.Date, Table: table})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rate archive: %w", err)
	}

	if windowDays > 0 && len(entries) > windowDays {
		entries = entries[len(entries)-windowDays:]
	}
	return entries, nil
}
