package domain

import (
	"encoding/json"
	"time"
)

// CostFunc computes the credit cost of a tool call from its arguments.
// A nil CostFunc means the tool is free.
type CostFunc func(args json.RawMessage) int64

// ToolDefinition describes a single callable operation exposed to the model.
// A definition belongs to exactly one skill.
type ToolDefinition struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	InputSchema          json.RawMessage `json:"input_schema"`
	Backend              BackendKind     `json:"backend"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	CreditCost           CostFunc        `json:"-"`

	// Prompt is the task-specific system prompt for model_skill tools.
	Prompt string `json:"-"`

	// ConfirmOptions are presented to the caller when confirmation is
	// required. A cancel option is always implied and never listed here.
	ConfirmOptions []ConfirmOption `json:"confirm_options,omitempty"`
}

// ConfirmOption is one choice presented by a confirmation request.
type ConfirmOption struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChoiceCancel is the implicit cancel choice of every confirmation request.
const ChoiceCancel = "cancel"

// ToolCall represents a tool execution owned by a single in-flight turn.
type ToolCall struct {
	ToolCallID  string          `json:"tool_call_id"`
	TurnID      string          `json:"turn_id"`
	ToolName    string          `json:"tool_name"`
	Backend     BackendKind     `json:"backend"`
	Status      ToolCallStatus  `json:"status"`
	Args        json.RawMessage `json:"args"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *ToolError      `json:"error,omitempty"`
	Retries     int             `json:"retries"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ToolError is the error payload of a failed tool call. Retryable is
// preserved so the model can see whether a retry with the same parameters
// could have helped.
type ToolError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *ToolError) Error() string {
	return e.Code + ": " + e.Message
}

// Stable tool-level error codes.
const (
	ToolErrToolNotFound        = "tool_not_found"
	ToolErrInvalidParams       = "invalid_params"
	ToolErrPermissionDenied    = "permission_denied"
	ToolErrBlocked             = "blocked"
	ToolErrCancelled           = "cancelled"
	ToolErrTimeout             = "timeout"
	ToolErrConnectionFailed    = "connection_failed"
	ToolErrExecutionFailed     = "execution_failed"
	ToolErrInsufficientCredits = "insufficient_credits"
)
