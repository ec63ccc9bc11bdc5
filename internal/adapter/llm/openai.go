package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// OpenAIClient implements Client against any OpenAI-compatible chat
// completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the given endpoint and model.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, req *GenerateRequest, onDelta DeltaFunc) (*GenerateResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: buildMessages(req),
		Tools:    buildTools(req.Tools),
	}

	if onDelta == nil {
		return c.generate(ctx, chatReq)
	}
	return c.generateStream(ctx, chatReq, onDelta)
}

func (c *OpenAIClient) generate(ctx context.Context, req openai.ChatCompletionRequest) (*GenerateResult, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	res := &GenerateResult{
		Text: choice.Message.Content,
		Usage: &domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, ToolCallRequest{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return res, nil
}

func (c *OpenAIClient) generateStream(ctx context.Context, req openai.ChatCompletionRequest, onDelta DeltaFunc) (*GenerateResult, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	var usage *domain.Usage
	// Tool call fragments arrive indexed; arguments accumulate across chunks.
	type partial struct {
		id   string
		name string
		args strings.Builder
	}
	partials := make(map[int]*partial)
	maxIndex := -1

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat completion stream failed: %w", err)
		}
		if chunk.Usage != nil {
			usage = &domain.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			onDelta(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p, ok := partials[idx]
			if !ok {
				p = &partial{}
				partials[idx] = p
				if idx > maxIndex {
					maxIndex = idx
				}
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args.WriteString(tc.Function.Arguments)
		}
	}

	res := &GenerateResult{Text: text.String(), Usage: usage}
	for i := 0; i <= maxIndex; i++ {
		p, ok := partials[i]
		if !ok {
			continue
		}
		args := p.args.String()
		if args == "" {
			args = "{}"
		}
		res.ToolCalls = append(res.ToolCalls, ToolCallRequest{
			ID:   p.id,
			Name: p.name,
			Args: json.RawMessage(args),
		})
	}
	return res, nil
}

func buildMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		cm := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		// Attachment references are passed through verbatim; the
		// orchestrator never interprets bytes.
		for _, att := range m.Attachments {
			cm.Content += fmt.Sprintf("\n[attachment %s: %s]", att.Kind, att.Path)
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		if m.Role == domain.RoleTool {
			cm.ToolCallID = m.ToolCallID
		}
		msgs = append(msgs, cm)
	}
	return msgs
}

func buildTools(defs []domain.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return out
}

// IsRetryable classifies a model call error as transient. Rate limits,
// timeouts and server-side failures are retryable; auth and request
// errors are not.
func IsRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.HTTPStatusCode == http.StatusRequestTimeout:
			return true
		case apiErr.HTTPStatusCode >= 500:
			return true
		}
		return false
	}
	// Network-level failures (connection refused, timeout) surface as
	// plain errors and are worth retrying.
	return true
}
