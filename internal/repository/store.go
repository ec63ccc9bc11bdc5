// Package store provides persistence for sessions, turns, tool calls,
// confirmations and the credit ledger.
package store

import (
	"context"
	"time"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// Store is the persistence interface used by the orchestrator service.
type Store interface {
	Close() error

	// Sessions and messages
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	CreateMessage(ctx context.Context, message *domain.Message) error
	AppendMessages(ctx context.Context, messages []domain.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Turns
	CreateTurn(ctx context.Context, turn *domain.Turn) error
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)
	GetActiveTurn(ctx context.Context, sessionID string) (*domain.Turn, error)
	UpdateTurnStatus(ctx context.Context, turnID string, status domain.TurnStatus, steps int) error
	UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, errData []byte) error

	// Tool calls
	CreateToolCall(ctx context.Context, tc *domain.ToolCall) error
	GetToolCall(ctx context.Context, toolCallID string) (*domain.ToolCall, error)
	UpdateToolCallStatus(ctx context.Context, toolCallID string, status domain.ToolCallStatus) (bool, error)
	UpdateToolCallResult(ctx context.Context, toolCallID string, status domain.ToolCallStatus, retries int, result []byte, toolErr *domain.ToolError) (bool, error)

	// Confirmations
	CreateConfirmation(ctx context.Context, cr *domain.ConfirmationRequest) error
	GetConfirmationByToolCall(ctx context.Context, toolCallID string) (*domain.ConfirmationRequest, error)
	ResolveConfirmation(ctx context.Context, confirmationID string, status domain.ConfirmationStatus, choice string) (bool, error)
	ListExpiredConfirmations(ctx context.Context, olderThan time.Time, limit int) ([]domain.ConfirmationRequest, error)

	// Ledger. ReserveFunds creates the account with initialBalance on
	// first use and reports ok=false when the balance cannot cover the
	// amount. FinalizeEntry moves a RESERVED entry to a terminal status
	// and reports applied=false when the entry was already terminal.
	ReserveFunds(ctx context.Context, userID string, amount int64, operationID string, initialBalance int64) (ok bool, balance int64, err error)
	FinalizeEntry(ctx context.Context, operationID string, status domain.LedgerStatus) (applied bool, err error)
	GetLedgerEntry(ctx context.Context, operationID string) (*domain.LedgerEntry, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GrantCredits(ctx context.Context, userID string, amount int64) error
}
