package service

import (
	"context"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// LedgerAPI defines the interface for interacting with the remote exchange ledger
type LedgerAPI interface {
	// GetRates retrieves the current rate table
	GetRates(ctx context.Context) (entity.RateTable, error)

	// GetArchive retrieves the server-retained history of daily rate tables
	GetArchive(ctx context.Context) ([]entity.ArchiveEntry, error)

	// GetUser retrieves the signed-in user's balance and transaction history
	GetUser(ctx context.Context) (*entity.UserSnapshot, error)

	// SubmitTransaction asks the ledger to buy or sell a foreign currency
	SubmitTransaction(ctx context.Context, intent entity.Intent) (*entity.UserSnapshot, error)

	// Deposit asks the ledger to credit the base currency
	Deposit(ctx context.Context, intent entity.Intent) (*entity.UserSnapshot, error)

	// SaveToken registers a push-notification device token for the user
	SaveToken(ctx context.Context, token string) error
}

// TokenSource supplies the bearer token of the signed-in user
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Authenticator is implemented by ledger clients that accept a token source
type Authenticator interface {
	SetTokenSource(src TokenSource)
}
