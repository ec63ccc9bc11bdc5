// Package llm provides an abstraction over the hosted model service.
package llm

import (
	"context"
	"encoding/json"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// GenerateRequest carries the conversation and the bounded tool set for
// one model call.
type GenerateRequest struct {
	System   string
	Messages []domain.Message
	Tools    []domain.ToolDefinition
}

// ToolCallRequest is a tool call the model asked for.
type ToolCallRequest struct {
	ID   string
	Name string
	Args json.RawMessage
}

// GenerateResult is the parsed model response: either final text, or one
// or more tool call requests (possibly with accompanying text).
type GenerateResult struct {
	Text      string
	ToolCalls []ToolCallRequest
	Usage     *domain.Usage
}

// DeltaFunc receives incremental text deltas during streaming generation.
type DeltaFunc func(text string)

// Client defines the model service operations the orchestrator depends on.
type Client interface {
	// Generate sends the history plus available tools to the model.
	// When onDelta is non-nil the response text is streamed through it;
	// the returned Text is always the complete concatenation.
	Generate(ctx context.Context, req *GenerateRequest, onDelta DeltaFunc) (*GenerateResult, error)
}
