package domain

import "encoding/json"

// StreamEventType is the type of an event delivered to the caller.
type StreamEventType string

const (
	StreamEventContent             StreamEventType = "content"
	StreamEventMetadata            StreamEventType = "metadata"
	StreamEventConfirmationRequest StreamEventType = "confirmation_request"
	StreamEventDone                StreamEventType = "done"
)

// StreamEvent is a single typed event on a session's output stream.
// A turn emits zero or more content/metadata/confirmation_request events
// followed by exactly one done event.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Ts      int64           `json:"ts"`
	TurnID  string          `json:"turn_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ContentPayload carries an incremental text delta.
type ContentPayload struct {
	Text string `json:"text"`
}

// MetadataPayload carries a structured payload for rendering, such as
// chart or card data produced by a tool.
type MetadataPayload struct {
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ConfirmationPayload presents a pending confirmation to the caller.
type ConfirmationPayload struct {
	ConfirmationID string          `json:"confirmation_id"`
	ToolCallID     string          `json:"tool_call_id"`
	ToolName       string          `json:"tool_name"`
	Options        []ConfirmOption `json:"options"`
}

// DonePayload terminates a turn on the stream.
type DonePayload struct {
	Status TurnStatus `json:"status"`
	Error  *TurnError `json:"error,omitempty"`
	Usage  *Usage     `json:"usage,omitempty"`
}

// Usage aggregates model token usage across a turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}
