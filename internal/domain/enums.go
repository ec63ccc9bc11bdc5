// Package domain defines the core domain models for the agent orchestrator.
package domain

// TurnStatus represents the status of a conversation turn.
type TurnStatus string

const (
	TurnStatusCreated             TurnStatus = "CREATED"
	TurnStatusRunning             TurnStatus = "RUNNING"
	TurnStatusWaitingConfirmation TurnStatus = "WAITING_CONFIRMATION"
	TurnStatusDone                TurnStatus = "DONE"
	TurnStatusFailed              TurnStatus = "FAILED"
	TurnStatusCancelled           TurnStatus = "CANCELLED"
)

// IsTerminal reports whether the turn reached a final state.
func (s TurnStatus) IsTerminal() bool {
	switch s {
	case TurnStatusDone, TurnStatusFailed, TurnStatusCancelled:
		return true
	}
	return false
}

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BackendKind represents the backend that executes a tool.
type BackendKind string

const (
	BackendUtility    BackendKind = "utility"
	BackendModelSkill BackendKind = "model_skill"
	BackendRPC        BackendKind = "backend_rpc"
)

// ToolCallStatus represents the status of a tool call.
type ToolCallStatus string

const (
	ToolCallStatusPending              ToolCallStatus = "PENDING"
	ToolCallStatusAwaitingConfirmation ToolCallStatus = "AWAITING_CONFIRMATION"
	ToolCallStatusRunning              ToolCallStatus = "RUNNING"
	ToolCallStatusSucceeded            ToolCallStatus = "SUCCEEDED"
	ToolCallStatusFailed               ToolCallStatus = "FAILED"
)

// IsTerminal reports whether the tool call reached a final state.
func (s ToolCallStatus) IsTerminal() bool {
	return s == ToolCallStatusSucceeded || s == ToolCallStatusFailed
}

// ConfirmationStatus represents the status of a confirmation request.
type ConfirmationStatus string

const (
	ConfirmationStatusPending   ConfirmationStatus = "PENDING"
	ConfirmationStatusResolved  ConfirmationStatus = "RESOLVED"
	ConfirmationStatusCancelled ConfirmationStatus = "CANCELLED"
)

// LedgerStatus represents the status of a ledger entry.
type LedgerStatus string

const (
	LedgerStatusReserved  LedgerStatus = "RESERVED"
	LedgerStatusCommitted LedgerStatus = "COMMITTED"
	LedgerStatusRefunded  LedgerStatus = "REFUNDED"
)

// AttachmentKind is the mime category of an attachment.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
)
