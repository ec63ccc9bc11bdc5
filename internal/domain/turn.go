package domain

import (
	"encoding/json"
	"time"
)

// Turn represents one complete cycle from message receipt to a persisted
// final answer.
type Turn struct {
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Status    TurnStatus      `json:"status"`
	Steps     int             `json:"steps"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// TurnError is the stable error payload persisted on failed turns and
// surfaced to the caller in the terminal stream event.
type TurnError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable turn-level error codes.
const (
	ErrCodeModelUnavailable = "model_unavailable"
	ErrCodeTaskTooComplex   = "task_too_complex"
	ErrCodeMalformedOutput  = "malformed_model_output"
	ErrCodeCancelled        = "cancelled"
	ErrCodeInternal         = "internal"
)
