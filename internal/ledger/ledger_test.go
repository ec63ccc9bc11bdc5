package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-ai/adpilot/internal/ledger"
	"github.com/adpilot-ai/adpilot/tests/helpers"
)

func TestReserveCommitRefund(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 100)
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, "u1", 30, "op1"))
	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	require.NoError(t, l.Commit(ctx, "op1"))
	balance, err = l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	require.NoError(t, l.Reserve(ctx, "u1", 20, "op2"))
	require.NoError(t, l.Refund(ctx, "op2"))
	balance, err = l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)
}

func TestInsufficientBalance(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 10)
	ctx := context.Background()

	err := l.Reserve(ctx, "u1", 25, "op1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var short *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(25), short.Requested)
	assert.Equal(t, int64(10), short.Balance)

	// The failed reservation must not touch the balance.
	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 100)
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, "u1", 40, "op1"))
	require.NoError(t, l.Commit(ctx, "op1"))

	// Repeated commit and a late refund are both no-ops.
	require.NoError(t, l.Commit(ctx, "op1"))
	require.NoError(t, l.Refund(ctx, "op1"))

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
}

func TestFinalizeUnknownOperation(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 100)

	err := l.Commit(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 100)
	ctx := context.Background()

	assert.Error(t, l.Reserve(ctx, "u1", 0, "op1"))
	assert.Error(t, l.Reserve(ctx, "u1", -5, "op2"))
	assert.Error(t, l.Grant(ctx, "u1", 0))
}

func TestConcurrentReservationsNeverOverdraw(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 100)
	ctx := context.Background()

	// 20 concurrent reservations of 10 against a balance of 100: exactly
	// 10 may succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Reserve(ctx, "u1", 10, fmt.Sprintf("op%d", i)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestGrantRestoresSpending(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	l := ledger.New(s, 10)
	ctx := context.Background()

	err := l.Reserve(ctx, "u1", 50, "op1")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The failed reservation rolled back account creation, so the grant
	// seeds the account outright.
	require.NoError(t, l.Grant(ctx, "u1", 100))
	require.NoError(t, l.Reserve(ctx, "u1", 50, "op2"))

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}
