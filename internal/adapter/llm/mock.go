package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

type mockStep struct {
	res *GenerateResult
	err error
}

// MockClient is a scripted Client implementation for tests and local
// development. Responses are consumed in order; when the script runs out
// the mock echoes the last user message.
type MockClient struct {
	mu     sync.Mutex
	script []mockStep
	calls  int
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock with an optional scripted response sequence.
func NewMockClient(script ...*GenerateResult) *MockClient {
	m := &MockClient{}
	for _, res := range script {
		m.script = append(m.script, mockStep{res: res})
	}
	return m
}

// Enqueue appends a scripted response.
func (m *MockClient) Enqueue(res *GenerateResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{res: res})
}

// EnqueueError appends a scripted failure.
func (m *MockClient) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: err})
}

// Calls returns how many times Generate was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req *GenerateRequest, onDelta DeltaFunc) (*GenerateResult, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	var step mockStep
	if idx < len(m.script) {
		step = m.script[idx]
	}
	m.mu.Unlock()

	if step.err != nil {
		return nil, step.err
	}
	res := step.res
	if res == nil {
		res = &GenerateResult{Text: m.echo(req)}
	}
	if onDelta != nil && res.Text != "" {
		for _, chunk := range splitChunks(res.Text, 16) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			onDelta(chunk)
		}
	}
	return res, nil
}

func (m *MockClient) echo(req *GenerateRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			return fmt.Sprintf("mock response to: %s", req.Messages[i].Content)
		}
	}
	return "mock response"
}

func splitChunks(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
