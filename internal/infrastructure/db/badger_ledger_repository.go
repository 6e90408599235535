// Package db internal/infrastructure/db/badger_ledger_repository.go
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/repository"
)

const (
	accountPrefix = "acct:"
	tokenPrefix   = "tok:"
)

// BadgerLedgerRepository implements the ledger repository interface using BadgerDB
type BadgerLedgerRepository struct {
	db *badger.DB
	// applyMu serialises read-modify-write of accounts
	applyMu sync.Mutex
}

// NewBadgerLedgerRepository creates a new BadgerDB ledger repository
func NewBadgerLedgerRepository(db *badger.DB) *BadgerLedgerRepository {
	return &BadgerLedgerRepository{db: db}
}

// FindSnapshot retrieves the user's account. Unknown users have an empty account.
func (r *BadgerLedgerRepository) FindSnapshot(ctx context.Context, userID string) (*entity.UserSnapshot, error) {
	var snap *entity.UserSnapshot

	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		snap, err = readAccount(txn, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve account: %w", err)
	}

	return snap, nil
}

// Apply debits and credits the account and appends tx in one BadgerDB transaction
func (r *BadgerLedgerRepository) Apply(ctx context.Context, userID string, debit, credit entity.Balance, tx entity.Transaction) (*entity.UserSnapshot, error) {
	var snap *entity.UserSnapshot

	update := func(txn *badger.Txn) error {
		current, err := readAccount(txn, userID)
		if err != nil {
			return err
		}

		for cur, amt := range debit {
			if current.Balance.Get(cur).LessThan(amt) {
				return repository.ErrInsufficientFunds
			}
			current.Balance[cur] = current.Balance.Get(cur).Sub(amt)
		}
		for cur, amt := range credit {
			current.Balance[cur] = current.Balance.Get(cur).Add(amt)
		}
		current.Transactions = append(current.Transactions, tx)

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		if err := txn.Set([]byte(accountPrefix+userID), data); err != nil {
			return err
		}

		snap = current
		return nil
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	err := r.db.Update(update)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply transaction: %w", err)
	}

	return snap, nil
}

// StoreDeviceToken remembers a push-notification token for the user
func (r *BadgerLedgerRepository) StoreDeviceToken(ctx context.Context, userID, token string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(tokenPrefix+userID+":"+token), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to store device token: %w", err)
	}
	return nil
}

// DeviceTokens lists the tokens registered for the user
func (r *BadgerLedgerRepository) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	prefix := []byte(tokenPrefix + userID + ":")
	tokens := []string{}

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			tokens = append(tokens, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}

	return tokens, nil
}

func readAccount(txn *badger.Txn, userID string) (*entity.UserSnapshot, error) {
	snap := &entity.UserSnapshot{
		Balance:      entity.Balance{},
		Transactions: []entity.Transaction{},
	}

	item, err := txn.Get([]byte(accountPrefix + userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	if snap.Balance == nil {
		snap.Balance = entity.Balance{}
	}
	for cur, amt := range snap.Balance {
		if amt.IsNegative() {
			snap.Balance[cur] = decimal.Zero
		}
	}

	return snap, nil
}
