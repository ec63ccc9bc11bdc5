package domain

import "time"

// LedgerEntry records one credit operation against a user's balance.
// Every RESERVED entry ends in exactly one terminal status; the ledger
// never leaves a reservation dangling.
type LedgerEntry struct {
	OperationID string       `json:"operation_id"`
	UserID      string       `json:"user_id"`
	Amount      int64        `json:"amount"`
	Status      LedgerStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
