package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			attachments TEXT,
			tool_calls TEXT,
			tool_call_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			steps INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			tool_call_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			backend TEXT NOT NULL,
			status TEXT NOT NULL,
			args TEXT,
			result TEXT,
			error TEXT,
			retries INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_turn ON tool_calls(turn_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS confirmations (
			confirmation_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			tool_call_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			options TEXT,
			status TEXT NOT NULL,
			choice TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			resolved_at DATETIME,
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_confirmations_tool_call ON confirmations(tool_call_id)`,
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			operation_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at, metadata) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.CreatedAt, nullStringBytes(session.Metadata))
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at, metadata FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &session.CreatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &domain.Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	return s.insertMessage(ctx, s.db, message)
}

// AppendMessages appends a turn's new messages in one transaction so a
// failed turn never leaves a partially-written history.
func (s *SQLiteStore) AppendMessages(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i := range messages {
		if err := s.insertMessage(ctx, tx, &messages[i]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) insertMessage(ctx context.Context, db execer, message *domain.Message) error {
	var attachments, toolCalls []byte
	if len(message.Attachments) > 0 {
		attachments, _ = json.Marshal(message.Attachments)
	}
	if len(message.ToolCalls) > 0 {
		toolCalls, _ = json.Marshal(message.ToolCalls)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, turn_id, role, content, attachments, tool_calls, tool_call_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, nullString(message.TurnID), message.Role, message.Content,
		nullStringBytes(attachments), nullStringBytes(toolCalls), nullString(message.ToolCallID), message.CreatedAt)
	return err
}

// GetMessages retrieves the most recent messages for a session in
// chronological order. Insertion order breaks created_at ties so message
// ordering within a turn is stable.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, turn_id, role, content, attachments, tool_calls, tool_call_id, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var turnID, attachments, toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &turnID, &msg.Role, &msg.Content,
			&attachments, &toolCalls, &toolCallID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if turnID.Valid {
			msg.TurnID = turnID.String
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		if attachments.Valid {
			json.Unmarshal([]byte(attachments.String), &msg.Attachments)
		}
		if toolCalls.Valid {
			json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateTurn creates a new turn.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *domain.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, user_id, status, steps, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.UserID, turn.Status, turn.Steps, turn.StartedAt)
	return err
}

// GetTurn retrieves a turn by ID.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT turn_id, session_id, user_id, status, steps, started_at, ended_at, error FROM turns WHERE turn_id = ?`,
		turnID)
	return scanTurn(row)
}

// GetActiveTurn returns the session's most recent non-terminal turn, if any.
func (s *SQLiteStore) GetActiveTurn(ctx context.Context, sessionID string) (*domain.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT turn_id, session_id, user_id, status, steps, started_at, ended_at, error FROM turns
		 WHERE session_id = ? AND status NOT IN ('DONE', 'FAILED', 'CANCELLED')
		 ORDER BY started_at DESC LIMIT 1`,
		sessionID)
	return scanTurn(row)
}

func scanTurn(row *sql.Row) (*domain.Turn, error) {
	var turn domain.Turn
	var endedAt sql.NullTime
	var errData sql.NullString
	err := row.Scan(&turn.TurnID, &turn.SessionID, &turn.UserID, &turn.Status, &turn.Steps, &turn.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		turn.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		turn.Error = json.RawMessage(errData.String)
	}
	return &turn, nil
}

// UpdateTurnStatus updates a turn's status and step counter.
func (s *SQLiteStore) UpdateTurnStatus(ctx context.Context, turnID string, status domain.TurnStatus, steps int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, steps = ? WHERE turn_id = ? AND ended_at IS NULL`,
		status, steps, turnID)
	return err
}

// UpdateTurnCompleted marks a turn terminal.
func (s *SQLiteStore) UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, errData []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, ended_at = ?, error = ? WHERE turn_id = ? AND ended_at IS NULL`,
		status, time.Now(), nullStringBytes(errData), turnID)
	return err
}

// CreateToolCall creates a new tool call record.
func (s *SQLiteStore) CreateToolCall(ctx context.Context, tc *domain.ToolCall) error {
	var errData []byte
	if tc.Error != nil {
		errData, _ = json.Marshal(tc.Error)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (tool_call_id, turn_id, tool_name, backend, status, args, result, error, retries, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ToolCallID, tc.TurnID, tc.ToolName, tc.Backend, tc.Status,
		nullStringBytes(tc.Args), nullStringBytes(tc.Result), nullStringBytes(errData), tc.Retries, tc.CreatedAt, tc.CompletedAt)
	return err
}

// GetToolCall retrieves a tool call by ID.
func (s *SQLiteStore) GetToolCall(ctx context.Context, toolCallID string) (*domain.ToolCall, error) {
	var tc domain.ToolCall
	var args, result, errData sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT tool_call_id, turn_id, tool_name, backend, status, args, result, error, retries, created_at, completed_at
		 FROM tool_calls WHERE tool_call_id = ?`,
		toolCallID).Scan(&tc.ToolCallID, &tc.TurnID, &tc.ToolName, &tc.Backend, &tc.Status,
		&args, &result, &errData, &tc.Retries, &tc.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if args.Valid {
		tc.Args = json.RawMessage(args.String)
	}
	if result.Valid {
		tc.Result = json.RawMessage(result.String)
	}
	if errData.Valid {
		var te domain.ToolError
		if json.Unmarshal([]byte(errData.String), &te) == nil {
			tc.Error = &te
		}
	}
	if completedAt.Valid {
		tc.CompletedAt = &completedAt.Time
	}
	return &tc, nil
}

// UpdateToolCallStatus updates a non-terminal tool call's status.
func (s *SQLiteStore) UpdateToolCallStatus(ctx context.Context, toolCallID string, status domain.ToolCallStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tool_calls SET status = ? WHERE tool_call_id = ? AND completed_at IS NULL`,
		status, toolCallID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateToolCallResult records a tool call's terminal result.
func (s *SQLiteStore) UpdateToolCallResult(ctx context.Context, toolCallID string, status domain.ToolCallStatus, retries int, result []byte, toolErr *domain.ToolError) (bool, error) {
	var errData []byte
	if toolErr != nil {
		errData, _ = json.Marshal(toolErr)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tool_calls SET status = ?, retries = ?, result = ?, error = ?, completed_at = ? WHERE tool_call_id = ? AND completed_at IS NULL`,
		status, retries, nullStringBytes(result), nullStringBytes(errData), time.Now(), toolCallID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CreateConfirmation creates a new confirmation request.
func (s *SQLiteStore) CreateConfirmation(ctx context.Context, cr *domain.ConfirmationRequest) error {
	var options []byte
	if len(cr.Options) > 0 {
		options, _ = json.Marshal(cr.Options)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO confirmations (confirmation_id, turn_id, session_id, tool_call_id, tool_name, options, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cr.ConfirmationID, cr.TurnID, cr.SessionID, cr.ToolCallID, cr.ToolName,
		nullStringBytes(options), cr.Status, cr.CreatedAt)
	return err
}

// GetConfirmationByToolCall retrieves the confirmation gating a tool call.
func (s *SQLiteStore) GetConfirmationByToolCall(ctx context.Context, toolCallID string) (*domain.ConfirmationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT confirmation_id, turn_id, session_id, tool_call_id, tool_name, options, status, choice, created_at, resolved_at
		 FROM confirmations WHERE tool_call_id = ? ORDER BY created_at DESC LIMIT 1`,
		toolCallID)
	return scanConfirmation(row)
}

func scanConfirmation(row *sql.Row) (*domain.ConfirmationRequest, error) {
	var cr domain.ConfirmationRequest
	var options, choice sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&cr.ConfirmationID, &cr.TurnID, &cr.SessionID, &cr.ToolCallID, &cr.ToolName,
		&options, &cr.Status, &choice, &cr.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if options.Valid {
		json.Unmarshal([]byte(options.String), &cr.Options)
	}
	if choice.Valid {
		cr.Choice = choice.String
	}
	if resolvedAt.Valid {
		cr.ResolvedAt = &resolvedAt.Time
	}
	return &cr, nil
}

// ResolveConfirmation moves a pending confirmation to a terminal status.
// Returns false when the confirmation was already resolved.
func (s *SQLiteStore) ResolveConfirmation(ctx context.Context, confirmationID string, status domain.ConfirmationStatus, choice string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE confirmations SET status = ?, choice = ?, resolved_at = ? WHERE confirmation_id = ? AND status = 'PENDING'`,
		status, nullString(choice), time.Now(), confirmationID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListExpiredConfirmations returns pending confirmations created before the cutoff.
func (s *SQLiteStore) ListExpiredConfirmations(ctx context.Context, olderThan time.Time, limit int) ([]domain.ConfirmationRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT confirmation_id, turn_id, session_id, tool_call_id, tool_name, options, status, choice, created_at, resolved_at
		 FROM confirmations WHERE status = 'PENDING' AND created_at < ? ORDER BY created_at ASC LIMIT ?`,
		olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConfirmationRequest
	for rows.Next() {
		var cr domain.ConfirmationRequest
		var options, choice sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&cr.ConfirmationID, &cr.TurnID, &cr.SessionID, &cr.ToolCallID, &cr.ToolName,
			&options, &cr.Status, &choice, &cr.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		if options.Valid {
			json.Unmarshal([]byte(options.String), &cr.Options)
		}
		if choice.Valid {
			cr.Choice = choice.String
		}
		if resolvedAt.Valid {
			cr.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
