// Package ledger implements the sandbox exchange ledger served by cmd/server
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/repository"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

// Config holds the sandbox ledger rules
type Config struct {
	Base              entity.Currency
	MinDeposit        decimal.Decimal
	ArchiveWindowDays int
}

// LedgerService applies deposits and exchanges to user accounts at the current rates
type LedgerService struct {
	accounts repository.LedgerRepository
	rates    repository.RateRepository
	cfg      Config
	logger   logger.Logger
	now      func() time.Time
}

// NewLedgerService creates a new sandbox ledger
func NewLedgerService(accounts repository.LedgerRepository, rates repository.RateRepository, cfg Config, log logger.Logger) *LedgerService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if cfg.ArchiveWindowDays <= 0 {
		cfg.ArchiveWindowDays = 30
	}

	return &LedgerService{
		accounts: accounts,
		rates:    rates,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// CurrentRates returns the latest rate table
func (s *LedgerService) CurrentRates(ctx context.Context) (entity.RateTable, error) {
	table, err := s.rates.Current(ctx)
	if err != nil {
		return entity.RateTable{}, fmt.Errorf("failed to load current rates: %w", err)
	}
	return table, nil
}

// Archive returns the retained daily rate tables
func (s *LedgerService) Archive(ctx context.Context) ([]entity.ArchiveEntry, error) {
	entries, err := s.rates.Archive(ctx, s.cfg.ArchiveWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate archive: %w", err)
	}
	return entries, nil
}

// Snapshot returns the user's balance and history
func (s *LedgerService) Snapshot(ctx context.Context, userID string) (*entity.UserSnapshot, error) {
	snap, err := s.accounts.FindSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Balance = snap.Balance.Clone(s.cfg.Base)
	return snap, nil
}

// Deposit credits amount of the base currency
func (s *LedgerService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*entity.UserSnapshot, error) {
	intent := entity.Intent{Kind: entity.KindDeposit, Amount: amount}
	if err := intent.Validate(s.policy()); err != nil {
		return nil, err
	}

	tx := s.newTransaction(intent, decimal.NewFromInt(1))
	snap, err := s.accounts.Apply(ctx, userID, nil, entity.Balance{s.cfg.Base: amount}, tx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposit applied", map[string]interface{}{
		"user_id": userID,
		"amount":  amount.String(),
	})
	return s.withBase(snap), nil
}

// Exchange buys or sells amount of a foreign currency against the base at the current rate
func (s *LedgerService) Exchange(ctx context.Context, userID string, kind entity.TransactionKind, currency entity.Currency, amount decimal.Decimal) (*entity.UserSnapshot, error) {
	intent := entity.Intent{Kind: kind, Currency: currency, Amount: amount}
	if kind != entity.KindBuy && kind != entity.KindSell {
		return nil, entity.NewValidationError(fmt.Sprintf("unsupported transaction type %q", kind))
	}
	if err := intent.Validate(s.policy()); err != nil {
		return nil, err
	}

	table, err := s.CurrentRates(ctx)
	if err != nil {
		return nil, err
	}
	rate, ok := table.Rate(currency)
	if !ok {
		return nil, entity.NewBusinessRuleError("no rate for "+currency.String(), 400)
	}

	tx := s.newTransaction(intent, rate)
	baseValue := tx.BaseCurrencyValue

	var debit, credit entity.Balance
	if kind == entity.KindBuy {
		debit = entity.Balance{s.cfg.Base: baseValue}
		credit = entity.Balance{currency: amount}
	} else {
		debit = entity.Balance{currency: amount}
		credit = entity.Balance{s.cfg.Base: baseValue}
	}

	snap, err := s.accounts.Apply(ctx, userID, debit, credit, tx)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		s.logger.Info("Exchange rejected", map[string]interface{}{
			"user_id":  userID,
			"type":     string(kind),
			"currency": currency.String(),
			"amount":   amount.String(),
		})
		return nil, entity.NewBusinessRuleError(repository.ErrInsufficientFunds.Error(), 400)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Exchange applied", map[string]interface{}{
		"user_id":    userID,
		"type":       string(kind),
		"currency":   currency.String(),
		"amount":     amount.String(),
		"rate":       rate.String(),
		"base_value": baseValue.String(),
	})
	return s.withBase(snap), nil
}

// RegisterDevice stores a push-notification token for the user
func (s *LedgerService) RegisterDevice(ctx context.Context, userID, token string) error {
	if token == "" {
		return entity.NewValidationError("empty token")
	}
	return s.accounts.StoreDeviceToken(ctx, userID, token)
}

// SeedRates stores a synthetic daily history of days tables ending today,
// wobbling around the given rates. Existing days are overwritten.
func (s *LedgerService) SeedRates(ctx context.Context, around entity.RateTable, days int) error {
	if days <= 0 {
		days = s.cfg.ArchiveWindowDays
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	for d := days - 1; d >= 0; d-- {
		date := today.AddDate(0, 0, -d)
		rates := make(map[entity.Currency]decimal.Decimal, len(around.Rates))
		for i, cur := range entity.ForeignCurrencies(s.cfg.Base) {
			mid, ok := around.Rate(cur)
			if !ok {
				continue
			}
			wobble := 0.02 * math.Sin(float64(d)*0.7+float64(i))
			rates[cur] = mid.Mul(decimal.NewFromFloat(1 + wobble)).Round(4)
		}
		if err := s.rates.StoreRates(ctx, entity.NewRateTable(date, rates)); err != nil {
			return err
		}
	}

	s.logger.Info("Rate history seeded", map[string]interface{}{
		"days": days,
		"to":   today.Format(entity.DateLayout),
	})
	return nil
}

func (s *LedgerService) policy() entity.DepositPolicy {
	return entity.DepositPolicy{Base: s.cfg.Base, MinDeposit: s.cfg.MinDeposit}
}

func (s *LedgerService) newTransaction(intent entity.Intent, rate decimal.Decimal) entity.Transaction {
	return entity.Transaction{
		ID:                uuid.New().String(),
		Kind:              intent.Kind,
		Currency:          intent.Currency,
		Amount:            intent.Amount,
		RateApplied:       rate,
		Timestamp:         s.now().UTC(),
		BaseCurrencyValue: intent.Amount.Mul(rate).Round(2),
	}
}

func (s *LedgerService) withBase(snap *entity.UserSnapshot) *entity.UserSnapshot {
	snap.Balance = snap.Balance.Clone(s.cfg.Base)
	return snap
}
