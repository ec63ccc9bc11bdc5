package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/tests/helpers"
)

func TestSessionAndMessages(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	session, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.SessionID)
	assert.Equal(t, "u1", session.UserID)

	// Second call returns the same session, ignoring the new user id.
	again, err := s.GetOrCreateSession(ctx, "s1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1", again.UserID)

	base := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		err := s.CreateMessage(ctx, &domain.Message{
			MessageID: "m" + string(rune('1'+i)),
			SessionID: "s1",
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	messages, err := s.GetMessages(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "third", messages[2].Content)

	// Limit keeps the most recent messages, still chronological.
	recent, err := s.GetMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Content)
	assert.Equal(t, "third", recent[1].Content)
}

func TestMessageOrderingWithinSameTimestamp(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)

	// A turn's messages can share a creation timestamp; insertion order
	// must still hold.
	now := time.Now()
	batch := []domain.Message{
		{MessageID: "m1", SessionID: "s1", Role: domain.RoleAssistant, Content: "planning", CreatedAt: now},
		{MessageID: "m2", SessionID: "s1", Role: domain.RoleTool, Content: "result", CreatedAt: now},
		{MessageID: "m3", SessionID: "s1", Role: domain.RoleAssistant, Content: "answer", CreatedAt: now},
	}
	require.NoError(t, s.AppendMessages(ctx, batch))

	messages, err := s.GetMessages(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "planning", messages[0].Content)
	assert.Equal(t, "result", messages[1].Content)
	assert.Equal(t, "answer", messages[2].Content)
}

func TestMessageRoundTripPreservesToolCalls(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)

	msg := &domain.Message{
		MessageID: "m1",
		SessionID: "s1",
		Role:      domain.RoleAssistant,
		Content:   "checking metrics",
		ToolCalls: []domain.ToolCallRecord{
			{ID: "call_1", Name: "metrics.query", Args: json.RawMessage(`{"campaign_id":"c1"}`)},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	messages, err := s.GetMessages(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].ToolCalls, 1)
	assert.Equal(t, "metrics.query", messages[0].ToolCalls[0].Name)
	assert.JSONEq(t, `{"campaign_id":"c1"}`, string(messages[0].ToolCalls[0].Args))
}

func TestTurnLifecycle(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)

	turn := &domain.Turn{
		TurnID:    "t1",
		SessionID: "s1",
		UserID:    "u1",
		Status:    domain.TurnStatusCreated,
		StartedAt: time.Now(),
	}
	require.NoError(t, s.CreateTurn(ctx, turn))

	active, err := s.GetActiveTurn(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "t1", active.TurnID)

	require.NoError(t, s.UpdateTurnStatus(ctx, "t1", domain.TurnStatusRunning, 2))
	got, err := s.GetTurn(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusRunning, got.Status)
	assert.Equal(t, 2, got.Steps)

	errData, _ := json.Marshal(domain.TurnError{Code: domain.ErrCodeTaskTooComplex, Message: "too many steps"})
	require.NoError(t, s.UpdateTurnCompleted(ctx, "t1", domain.TurnStatusFailed, errData))

	got, err = s.GetTurn(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusFailed, got.Status)
	assert.NotNil(t, got.EndedAt)
	assert.NotEmpty(t, got.Error)

	// Terminal turns no longer show as active and accept no updates.
	active, err = s.GetActiveTurn(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, s.UpdateTurnStatus(ctx, "t1", domain.TurnStatusRunning, 5))
	got, err = s.GetTurn(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusFailed, got.Status)
}

func TestToolCallResultIdempotency(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, s.CreateTurn(ctx, &domain.Turn{
		TurnID: "t1", SessionID: "s1", UserID: "u1", Status: domain.TurnStatusRunning, StartedAt: time.Now(),
	}))

	tc := &domain.ToolCall{
		ToolCallID: "tc1",
		TurnID:     "t1",
		ToolName:   "metrics.query",
		Backend:    domain.BackendRPC,
		Status:     domain.ToolCallStatusPending,
		Args:       json.RawMessage(`{"campaign_id":"c1"}`),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreateToolCall(ctx, tc))

	applied, err := s.UpdateToolCallResult(ctx, "tc1", domain.ToolCallStatusSucceeded, 1, []byte(`{"ok":true}`), nil)
	require.NoError(t, err)
	assert.True(t, applied)

	// A second terminal write is rejected.
	applied, err = s.UpdateToolCallResult(ctx, "tc1", domain.ToolCallStatusFailed, 0, nil, &domain.ToolError{Code: domain.ToolErrTimeout})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetToolCall(ctx, "tc1")
	require.NoError(t, err)
	assert.Equal(t, domain.ToolCallStatusSucceeded, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	assert.Nil(t, got.Error)
}

func TestConfirmationResolveOnce(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, s.CreateTurn(ctx, &domain.Turn{
		TurnID: "t1", SessionID: "s1", UserID: "u1", Status: domain.TurnStatusRunning, StartedAt: time.Now(),
	}))

	cr := &domain.ConfirmationRequest{
		ConfirmationID: "cr1",
		TurnID:         "t1",
		SessionID:      "s1",
		ToolCallID:     "tc1",
		ToolName:       "campaign.pause",
		Options: []domain.ConfirmOption{
			{ID: "pause_now", Label: "Pause immediately"},
		},
		Status:    domain.ConfirmationStatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateConfirmation(ctx, cr))

	got, err := s.GetConfirmationByToolCall(ctx, "tc1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ConfirmationStatusPending, got.Status)
	require.Len(t, got.Options, 1)

	applied, err := s.ResolveConfirmation(ctx, "cr1", domain.ConfirmationStatusResolved, "pause_now")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.ResolveConfirmation(ctx, "cr1", domain.ConfirmationStatusCancelled, domain.ChoiceCancel)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = s.GetConfirmationByToolCall(ctx, "tc1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmationStatusResolved, got.Status)
	assert.Equal(t, "pause_now", got.Choice)
	assert.NotNil(t, got.ResolvedAt)
}

func TestListExpiredConfirmations(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateSession(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, s.CreateTurn(ctx, &domain.Turn{
		TurnID: "t1", SessionID: "s1", UserID: "u1", Status: domain.TurnStatusRunning, StartedAt: time.Now(),
	}))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateConfirmation(ctx, &domain.ConfirmationRequest{
		ConfirmationID: "cr_old", TurnID: "t1", SessionID: "s1", ToolCallID: "tc_old",
		ToolName: "budget.update", Status: domain.ConfirmationStatusPending, CreatedAt: old,
	}))
	require.NoError(t, s.CreateConfirmation(ctx, &domain.ConfirmationRequest{
		ConfirmationID: "cr_new", TurnID: "t1", SessionID: "s1", ToolCallID: "tc_new",
		ToolName: "budget.update", Status: domain.ConfirmationStatusPending, CreatedAt: time.Now(),
	}))

	expired, err := s.ListExpiredConfirmations(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "cr_old", expired[0].ConfirmationID)
}

func TestLedgerReserveAndFinalize(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	// First reservation creates the account.
	ok, balance, err := s.ReserveFunds(ctx, "u1", 30, "op1", 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(70), balance)

	// Over-budget reservation fails closed and leaves the balance alone.
	ok, balance, err = s.ReserveFunds(ctx, "u1", 80, "op2", 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(70), balance)

	// Commit keeps the debit.
	applied, err := s.FinalizeEntry(ctx, "op1", domain.LedgerStatusCommitted)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), got)

	// Finalizing twice is a no-op.
	applied, err = s.FinalizeEntry(ctx, "op1", domain.LedgerStatusRefunded)
	require.NoError(t, err)
	assert.False(t, applied)
	got, err = s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), got)

	// Refund returns the credits.
	ok, _, err = s.ReserveFunds(ctx, "u1", 20, "op3", 100)
	require.NoError(t, err)
	require.True(t, ok)
	applied, err = s.FinalizeEntry(ctx, "op3", domain.LedgerStatusRefunded)
	require.NoError(t, err)
	assert.True(t, applied)
	got, err = s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), got)

	entry, err := s.GetLedgerEntry(ctx, "op3")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.LedgerStatusRefunded, entry.Status)
}

func TestGrantCredits(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.GrantCredits(ctx, "u1", 50))
	balance, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	require.NoError(t, s.GrantCredits(ctx, "u1", 25))
	balance, err = s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)
}
