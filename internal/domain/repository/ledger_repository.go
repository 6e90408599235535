// Package repository internal/domain/repository/ledger_repository.go
package repository

import (
	"context"
	"errors"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// ErrInsufficientFunds is returned when a debit exceeds the available balance
var ErrInsufficientFunds = errors.New("insufficient funds")

// LedgerRepository defines the interface for the sandbox ledger's account storage
type LedgerRepository interface {
	// FindSnapshot returns the user's balance and history, creating an empty account on first use
	FindSnapshot(ctx context.Context, userID string) (*entity.UserSnapshot, error)

	// Apply atomically debits and credits the user's balance and appends tx to the history
	Apply(ctx context.Context, userID string, debit, credit entity.Balance, tx entity.Transaction) (*entity.UserSnapshot, error)

	// StoreDeviceToken remembers a push-notification token for the user
	StoreDeviceToken(ctx context.Context, userID, token string) error

	// DeviceTokens lists the tokens registered for the user
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
}

// RateRepository defines the interface for the sandbox ledger's rate history
type RateRepository interface {
	// Current returns the most recent rate table
	Current(ctx context.Context) (entity.RateTable, error)

	// Archive returns up to windowDays most recent daily tables
	Archive(ctx context.Context, windowDays int) ([]entity.ArchiveEntry, error)

	// StoreRates saves the table for its date, replacing any existing one
	StoreRates(ctx context.Context, table entity.RateTable) error
}
