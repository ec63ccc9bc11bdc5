// Package ledger tracks per-user credit balances with reserve, commit and
// refund semantics.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adpilot-ai/adpilot/internal/domain"
	store "github.com/adpilot-ai/adpilot/internal/repository"
)

// ErrInsufficientBalance is returned when a reservation cannot be covered.
// Reservations fail closed: the corresponding tool call never runs.
var ErrInsufficientBalance = errors.New("insufficient balance")

// InsufficientBalanceError carries the shortfall so the caller can surface it.
type InsufficientBalanceError struct {
	Requested int64
	Balance   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %d, have %d", e.Requested, e.Balance)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Ledger serializes credit operations per user. Reserve/commit/refund for a
// given operation id are linearizable: the per-user mutex covers the whole
// read-check-write sequence, not just the API surface.
type Ledger struct {
	store          store.Store
	initialBalance int64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the given store. New users start with
// initialBalance credits.
func New(s store.Store, initialBalance int64) *Ledger {
	return &Ledger{
		store:          s,
		initialBalance: initialBalance,
		locks:          make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

// Reserve provisionally debits amount from the user's balance under the
// given operation id. Returns an InsufficientBalanceError when the balance
// cannot cover the amount.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int64, operationID string) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ok, balance, err := l.store.ReserveFunds(ctx, userID, amount, operationID, l.initialBalance)
	if err != nil {
		return fmt.Errorf("failed to reserve funds: %w", err)
	}
	if !ok {
		return &InsufficientBalanceError{Requested: amount, Balance: balance}
	}
	return nil
}

// Commit finalizes a reservation. Committing an already-terminal operation
// is a no-op.
func (l *Ledger) Commit(ctx context.Context, operationID string) error {
	return l.finalize(ctx, operationID, true)
}

// Refund returns a reservation to the user's balance. Refunding an
// already-terminal operation is a no-op.
func (l *Ledger) Refund(ctx context.Context, operationID string) error {
	return l.finalize(ctx, operationID, false)
}

func (l *Ledger) finalize(ctx context.Context, operationID string, commit bool) error {
	entry, err := l.store.GetLedgerEntry(ctx, operationID)
	if err != nil {
		return fmt.Errorf("failed to load ledger entry: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("unknown ledger operation %s", operationID)
	}

	lock := l.userLock(entry.UserID)
	lock.Lock()
	defer lock.Unlock()

	status := statusFor(commit)
	if _, err := l.store.FinalizeEntry(ctx, operationID, status); err != nil {
		return fmt.Errorf("failed to finalize ledger entry: %w", err)
	}
	return nil
}

func statusFor(commit bool) domain.LedgerStatus {
	if commit {
		return domain.LedgerStatusCommitted
	}
	return domain.LedgerStatusRefunded
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.store.GetBalance(ctx, userID)
}

// Grant adds credits to a user's balance.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return l.store.GrantCredits(ctx, userID, amount)
}
