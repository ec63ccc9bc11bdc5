package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-ai/adpilot/internal/adapter/backend"
)

func TestCallToolSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tools/call", r.URL.Path)

		var req struct {
			Name   string          `json:"name"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "metrics.query", req.Name)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"ctr":0.042}}`))
	}))
	defer srv.Close()

	c := backend.NewClient(srv.URL, 5*time.Second)
	result, err := c.CallTool(context.Background(), "metrics.query", json.RawMessage(`{"campaign_id":"c1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ctr":0.042}`, string(result))
}

func TestCallToolProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":{"code":"tool_not_found","message":"no such tool"}}`))
	}))
	defer srv.Close()

	c := backend.NewClient(srv.URL, 5*time.Second)
	_, err := c.CallTool(context.Background(), "nope", nil)
	require.Error(t, err)

	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, backend.CodeToolNotFound, be.Code)
	assert.False(t, be.Retryable())
}

func TestCallToolServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := backend.NewClient(srv.URL, 5*time.Second)
	_, err := c.CallTool(context.Background(), "metrics.query", nil)
	require.Error(t, err)

	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, backend.CodeExecutionFailed, be.Code)
	assert.True(t, be.Retryable())
}

func TestCallToolConnectionFailed(t *testing.T) {
	// Nothing listens here.
	c := backend.NewClient("http://127.0.0.1:1", time.Second)
	_, err := c.CallTool(context.Background(), "metrics.query", nil)
	require.Error(t, err)

	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, backend.CodeConnectionFailed, be.Code)
	assert.True(t, be.Retryable())
}

func TestCallToolTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := backend.NewClient(srv.URL, 20*time.Millisecond)
	_, err := c.CallTool(context.Background(), "metrics.query", nil)
	require.Error(t, err)

	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, backend.CodeTimeout, be.Code)
	assert.True(t, be.Retryable())
}

func TestRetryableClassification(t *testing.T) {
	retryable := []string{backend.CodeConnectionFailed, backend.CodeTimeout, backend.CodeExecutionFailed}
	for _, code := range retryable {
		assert.True(t, (&backend.Error{Code: code}).Retryable(), code)
	}
	terminal := []string{backend.CodeToolNotFound, backend.CodeInvalidParams, backend.CodeInsufficientResource}
	for _, code := range terminal {
		assert.False(t, (&backend.Error{Code: code}).Retryable(), code)
	}
}
