package domain

import (
	"encoding/json"
	"time"
)

// Session is a persistent conversation owned by a single user.
type Session struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Message is a single entry in a session's ordered history.
// Tool messages reference the tool call that produced them.
type Message struct {
	MessageID   string           `json:"message_id"`
	SessionID   string           `json:"session_id"`
	TurnID      string           `json:"turn_id,omitempty"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Attachments []Attachment     `json:"attachments,omitempty"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	ToolCallID  string           `json:"tool_call_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ToolCallRecord is the assistant-side record of a requested tool call,
// kept on the message so history replays carry the model's requests.
type ToolCallRecord struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Attachment is an opaque storage reference passed through to the model
// adapter. The orchestrator never interprets attachment bytes.
type Attachment struct {
	Path      string         `json:"path"`
	Kind      AttachmentKind `json:"kind"`
	SizeBytes int64          `json:"size_bytes"`
}
