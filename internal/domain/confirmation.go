package domain

import "time"

// ConfirmationRequest is a pending human decision gating one tool call.
// It is the only orchestration state that outlives a single
// request/response cycle of the transport.
type ConfirmationRequest struct {
	ConfirmationID string             `json:"confirmation_id"`
	TurnID         string             `json:"turn_id"`
	SessionID      string             `json:"session_id"`
	ToolCallID     string             `json:"tool_call_id"`
	ToolName       string             `json:"tool_name"`
	Options        []ConfirmOption    `json:"options"`
	Status         ConfirmationStatus `json:"status"`
	Choice         string             `json:"choice,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
}
