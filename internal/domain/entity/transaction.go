package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the type of a ledger mutation
type TransactionKind string

const (
	KindDeposit TransactionKind = "deposit"
	KindBuy     TransactionKind = "buy"
	KindSell    TransactionKind = "sell"
)

// ParseTransactionKind validates a wire value
func ParseTransactionKind(s string) (TransactionKind, error) {
	switch k := TransactionKind(s); k {
	case KindDeposit, KindBuy, KindSell:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transaction kind: %q", s)
	}
}

// Transaction is a settled ledger entry as reported by the server
type Transaction struct {
	ID                string          `json:"id"`
	Kind              TransactionKind `json:"type"`
	Currency          Currency        `json:"currency"`
	Amount            decimal.Decimal `json:"amount"`
	RateApplied       decimal.Decimal `json:"rate"`
	Timestamp         time.Time       `json:"timestamp"`
	BaseCurrencyValue decimal.Decimal `json:"base_value"`
}

// Intent is a mutation the client wants the ledger to perform.
// It is never applied locally; the ledger's reply is the only source of truth.
type Intent struct {
	ID       string
	Kind     TransactionKind
	Currency Currency
	Amount   decimal.Decimal
}

// DepositPolicy holds the client-side checks applied before submission
type DepositPolicy struct {
	Base       Currency
	MinDeposit decimal.Decimal
}

// Validate ensures the intent meets the client-side requirements
func (i *Intent) Validate(policy DepositPolicy) error {
	if !i.Amount.IsPositive() {
		return ErrInvalidAmount
	}

	switch i.Kind {
	case KindDeposit:
		i.Currency = policy.Base
		if i.Amount.LessThan(policy.MinDeposit) {
			return ErrBelowMinimum
		}
	case KindBuy, KindSell:
		if !i.Currency.Valid() || i.Currency == policy.Base {
			return ErrUnsupportedCurrency
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown transaction kind %q", i.Kind))
	}

	return nil
}

// UserSnapshot is the ledger's view of the signed-in user
type UserSnapshot struct {
	Balance      Balance
	Transactions []Transaction
}
