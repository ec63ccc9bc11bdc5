// Package backend implements the client side of the data platform's
// tool-invocation protocol.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error codes of the tool-invocation protocol.
const (
	CodeConnectionFailed     = "connection_failed"
	CodeTimeout              = "timeout"
	CodeToolNotFound         = "tool_not_found"
	CodeInvalidParams        = "invalid_params"
	CodeExecutionFailed      = "execution_failed"
	CodeInsufficientResource = "insufficient_resource"
)

// Error is a typed failure from the backend platform.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Code, e.Message)
}

// Retryable reports whether the failure is transient. Connection
// failures, timeouts and execution failures may succeed on retry;
// unknown tools and invalid params never will.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeConnectionFailed, CodeTimeout, CodeExecutionFailed:
		return true
	}
	return false
}

// Client calls the backend tool-invocation endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type callRequest struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

type callResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// CallTool invokes a named tool on the backend platform. Failures are
// returned as *Error with a protocol error code.
func (c *Client) CallTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(callRequest{Name: name, Params: params})
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tools/call", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeConnectionFailed, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Code: CodeTimeout, Message: err.Error()}
		}
		return nil, &Error{Code: CodeConnectionFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	var out callResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= 500 {
			return nil, &Error{Code: CodeExecutionFailed, Message: fmt.Sprintf("backend returned status %d", resp.StatusCode)}
		}
		return nil, &Error{Code: CodeExecutionFailed, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if resp.StatusCode != http.StatusOK {
		// Rate limits and 5xx land here; execution_failed is retryable.
		return nil, &Error{Code: CodeExecutionFailed, Message: fmt.Sprintf("backend returned status %d", resp.StatusCode)}
	}
	return out.Result, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
