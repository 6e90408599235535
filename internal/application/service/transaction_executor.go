package service

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/metrics"
)

// ErrExecutorBusy is returned when a submission arrives while another is in flight
var ErrExecutorBusy = errors.New("a transaction is already in progress")

// ExecutorState is a step of the transaction lifecycle
type ExecutorState string

const (
	StateIdle       ExecutorState = "idle"
	StateValidating ExecutorState = "validating"
	StateSubmitting ExecutorState = "submitting"
	StateSettled    ExecutorState = "settled"
	StateFailed     ExecutorState = "failed"
)

// Outcome is the result of the last finished submission
type Outcome struct {
	State    ExecutorState
	Intent   entity.Intent
	Snapshot *entity.UserSnapshot
	Err      error
}

// Resyncer re-runs the sync cycle after a settled transaction. settled is
// the snapshot the ledger returned for the transaction.
type Resyncer interface {
	Resync(ctx context.Context, settled *entity.UserSnapshot) error
}

// TransitionObserver is called on every state change
type TransitionObserver func(from, to ExecutorState)

// TransactionExecutor validates and submits one transaction intent at a time.
// The cached balance is never touched here; settlement triggers a resync.
type TransactionExecutor struct {
	ledger  service.LedgerAPI
	resync  Resyncer
	policy  entity.DepositPolicy
	logger  logger.Logger
	metrics *metrics.Metrics
	newID   func() string

	mu        sync.Mutex
	state     ExecutorState
	last      *Outcome
	observers []TransitionObserver
}

// NewTransactionExecutor creates an executor. resync may be nil.
func NewTransactionExecutor(ledger service.LedgerAPI, resync Resyncer, policy entity.DepositPolicy, log logger.Logger, m *metrics.Metrics) *TransactionExecutor {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &TransactionExecutor{
		ledger:  ledger,
		resync:  resync,
		policy:  policy,
		logger:  log,
		metrics: m,
		newID:   func() string { return uuid.New().String() },
		state:   StateIdle,
	}
}

// Observe registers fn for every state transition. fn runs with the executor
// locked and must not call back into it.
func (e *TransactionExecutor) Observe(fn TransitionObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.observers = append(e.observers, fn)
}

// State returns the current lifecycle state
func (e *TransactionExecutor) State() ExecutorState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Last returns the outcome of the last finished submission
func (e *TransactionExecutor) Last() (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last == nil {
		return Outcome{}, false
	}
	return *e.last, true
}

// Validate builds an intent and applies the client-side checks without submitting it
func (e *TransactionExecutor) Validate(kind entity.TransactionKind, currency entity.Currency, amount float64) (entity.Intent, error) {
	intent := entity.Intent{
		ID:       e.newID(),
		Kind:     kind,
		Currency: currency,
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return intent, entity.ErrInvalidAmount
	}
	intent.Amount = decimal.NewFromFloat(amount)

	if err := intent.Validate(e.policy); err != nil {
		return intent, err
	}
	return intent, nil
}

// Submit validates and submits a transaction. It returns ErrExecutorBusy
// without any network call when another submission is in progress.
func (e *TransactionExecutor) Submit(ctx context.Context, kind entity.TransactionKind, currency entity.Currency, amount float64) (Outcome, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		e.metrics.TransactionFinished(string(kind), "rejected")
		return Outcome{}, ErrExecutorBusy
	}
	e.transitionLocked(StateValidating)
	e.mu.Unlock()

	intent, err := e.Validate(kind, currency, amount)
	if err != nil {
		e.logger.Info("Transaction rejected locally", map[string]interface{}{
			"type":   string(kind),
			"amount": amount,
			"error":  err.Error(),
		})
		return e.finish(Outcome{State: StateFailed, Intent: intent, Err: err}, "invalid"), err
	}

	e.transition(StateSubmitting)

	log := e.logger.WithFields(map[string]interface{}{
		"intent_id": intent.ID,
		"type":      string(intent.Kind),
		"currency":  intent.Currency.String(),
		"amount":    intent.Amount.String(),
	})

	var snap *entity.UserSnapshot
	if intent.Kind == entity.KindDeposit {
		snap, err = e.ledger.Deposit(ctx, intent)
	} else {
		snap, err = e.ledger.SubmitTransaction(ctx, intent)
	}

	if err != nil {
		log.Warn("Transaction failed", map[string]interface{}{
			"error": err.Error(),
			"kind":  string(entity.KindOf(err)),
		})
		return e.finish(Outcome{State: StateFailed, Intent: intent, Err: err}, "failed"), err
	}

	log.Info("Transaction settled", nil)
	e.transition(StateSettled)

	if e.resync != nil {
		if rerr := e.resync.Resync(ctx, snap); rerr != nil {
			log.Warn("Resync after settlement failed", map[string]interface{}{
				"error": rerr.Error(),
			})
		}
	}

	return e.finish(Outcome{State: StateSettled, Intent: intent, Snapshot: snap}, "settled"), nil
}

// finish records the outcome and returns the executor to Idle
func (e *TransactionExecutor) finish(out Outcome, metric string) Outcome {
	e.metrics.TransactionFinished(string(out.Intent.Kind), metric)

	e.mu.Lock()
	defer e.mu.Unlock()

	if out.State == StateFailed && e.state != StateFailed {
		e.transitionLocked(StateFailed)
	}
	e.last = &out
	e.transitionLocked(StateIdle)
	return out
}

func (e *TransactionExecutor) transition(to ExecutorState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transitionLocked(to)
}

// transitionLocked must be called with mu held
func (e *TransactionExecutor) transitionLocked(to ExecutorState) {
	from := e.state
	e.state = to
	for _, fn := range e.observers {
		fn(from, to)
	}
}
