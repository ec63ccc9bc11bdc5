package domain

// ChatRequest is the turn intake payload.
type ChatRequest struct {
	SessionID   string       `json:"session_id" validate:"required"`
	Message     string       `json:"message" validate:"required"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"dive"`
	UserID      string       `json:"user_id,omitempty"`
}

// ChatAccepted acknowledges an accepted turn; processing is asynchronous.
type ChatAccepted struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
}

// ConfirmRequest resolves a pending confirmation.
type ConfirmRequest struct {
	SessionID  string `json:"session_id" validate:"required"`
	ToolCallID string `json:"tool_call_id" validate:"required"`
	Choice     string `json:"choice" validate:"required"`
}

// CancelRequest cancels the in-flight turn of a session.
type CancelRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}
