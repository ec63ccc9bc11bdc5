package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// ReserveFunds atomically debits a user's balance and records a RESERVED
// entry. The account is created with initialBalance on first use. Returns
// ok=false (with the current balance) when the balance cannot cover the
// amount; no entry is written in that case.
func (s *SQLiteStore) ReserveFunds(ctx context.Context, userID string, amount int64, operationID string, initialBalance int64) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = initialBalance
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_accounts (user_id, balance) VALUES (?, ?)`, userID, balance); err != nil {
			return false, 0, err
		}
	} else if err != nil {
		return false, 0, err
	}

	if balance < amount {
		return false, balance, nil
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (operation_id, user_id, amount, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		operationID, userID, amount, domain.LedgerStatusReserved, now, now); err != nil {
		return false, 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_accounts SET balance = balance - ? WHERE user_id = ?`, amount, userID); err != nil {
		return false, 0, err
	}

	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, balance - amount, nil
}

// FinalizeEntry moves a RESERVED entry to COMMITTED or REFUNDED. A refund
// restores the reserved amount to the account balance. Returns
// applied=false when the entry is missing or already terminal, which makes
// commit and refund idempotent.
func (s *SQLiteStore) FinalizeEntry(ctx context.Context, operationID string, status domain.LedgerStatus) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var userID string
	var amount int64
	var current domain.LedgerStatus
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, amount, status FROM ledger_entries WHERE operation_id = ?`, operationID).
		Scan(&userID, &amount, &current)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current != domain.LedgerStatusReserved {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET status = ?, updated_at = ? WHERE operation_id = ?`,
		status, time.Now(), operationID); err != nil {
		return false, err
	}
	if status == domain.LedgerStatusRefunded {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ledger_accounts SET balance = balance + ? WHERE user_id = ?`, amount, userID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetLedgerEntry retrieves a ledger entry by operation ID.
func (s *SQLiteStore) GetLedgerEntry(ctx context.Context, operationID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT operation_id, user_id, amount, status, created_at, updated_at FROM ledger_entries WHERE operation_id = ?`,
		operationID).Scan(&e.OperationID, &e.UserID, &e.Amount, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetBalance returns a user's current balance. Unknown users have zero.
func (s *SQLiteStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GrantCredits adds credits to a user's balance, creating the account if needed.
func (s *SQLiteStore) GrantCredits(ctx context.Context, userID string, amount int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_accounts (user_id, balance) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance`,
		userID, amount)
	return err
}
