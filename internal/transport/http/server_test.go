package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-ai/adpilot/internal/adapter/backend"
	"github.com/adpilot-ai/adpilot/internal/adapter/llm"
	"github.com/adpilot-ai/adpilot/internal/config"
	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/internal/ledger"
	"github.com/adpilot-ai/adpilot/internal/service"
	"github.com/adpilot-ai/adpilot/internal/skills"
	"github.com/adpilot-ai/adpilot/internal/stream"
	"github.com/adpilot-ai/adpilot/internal/tools"
	transporthttp "github.com/adpilot-ai/adpilot/internal/transport/http"
	"github.com/adpilot-ai/adpilot/policy"
	"github.com/adpilot-ai/adpilot/tests/helpers"
)

func newTestServer(t *testing.T) (*service.Service, *llm.MockClient, http.Handler) {
	t.Helper()

	cfg := &config.Config{
		MaxSkills:        3,
		MaxSteps:         10,
		MaxParallelTools: 3,
		MaxToolRetries:   1,
		RetryBaseDelay:   time.Millisecond,
		HistoryLimit:     50,
		TurnTimeout:      10 * time.Second,
		InitialCredits:   100,
	}

	st := helpers.NewTestSQLiteStore(t)
	ldg := ledger.New(st, cfg.InitialCredits)
	registry, err := skills.NewRegistry(skills.DefaultCatalog())
	require.NoError(t, err)
	selector := skills.NewSelector(registry, cfg.MaxSkills)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	svc := service.New(st, ldg, registry, selector, tools.NewBuiltinRegistry(0), mock,
		backend.NewClient("http://127.0.0.1:1", time.Second), stream.NewBroker(), policyEngine, cfg)

	return svc, mock, transporthttp.NewServer(svc)
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitForTurn(t *testing.T, svc *service.Service, turnID string) *domain.Turn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		turn, err := svc.GetTurn(context.Background(), turnID)
		require.NoError(t, err)
		if turn != nil && turn.Status.IsTerminal() {
			return turn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("turn did not reach a terminal state")
	return nil
}

func TestChatAcceptsAndRuns(t *testing.T) {
	svc, mock, h := newTestServer(t)
	mock.Enqueue(&llm.GenerateResult{Text: "hello from adpilot"})

	rec := postJSON(t, h, "/v1/chat", domain.ChatRequest{SessionID: "s1", Message: "hi"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted domain.ChatAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "s1", accepted.SessionID)
	require.NotEmpty(t, accepted.TurnID)

	turn := waitForTurn(t, svc, accepted.TurnID)
	assert.Equal(t, domain.TurnStatusDone, turn.Status)
}

func TestChatValidation(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := postJSON(t, h, "/v1/chat", map[string]string{"session_id": "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/v1/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatQueuesWhileInFlight(t *testing.T) {
	svc, mock, h := newTestServer(t)

	// A confirmation keeps the turn open.
	mock.Enqueue(&llm.GenerateResult{
		ToolCalls: []llm.ToolCallRequest{
			{ID: "call_1", Name: "campaign.pause", Args: json.RawMessage(`{"campaign_id":"c1"}`)},
		},
	})
	mock.Enqueue(&llm.GenerateResult{Text: "ok"})
	mock.Enqueue(&llm.GenerateResult{Text: "second answer"})

	sub := svc.Subscribe("s1")
	defer svc.Unsubscribe(sub)

	rec := postJSON(t, h, "/v1/chat", domain.ChatRequest{SessionID: "s1", Message: "pause campaign c1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted domain.ChatAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	// Wait until the confirmation is pending.
	var confirmation domain.ConfirmationPayload
	deadline := time.After(5 * time.Second)
	for confirmation.ToolCallID == "" {
		select {
		case event := <-sub.C:
			if event.Type == domain.StreamEventConfirmationRequest {
				require.NoError(t, json.Unmarshal(event.Payload, &confirmation))
			}
		case <-deadline:
			t.Fatal("no confirmation request")
		}
	}

	// A message for the busy session is accepted and queued.
	rec = postJSON(t, h, "/v1/chat", domain.ChatRequest{SessionID: "s1", Message: "another"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var queued domain.ChatAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))
	assert.NotEqual(t, accepted.TurnID, queued.TurnID)

	// Resolve through the API; both turns then finish in order.
	rec = postJSON(t, h, "/v1/chat/confirm", domain.ConfirmRequest{
		SessionID: "s1", ToolCallID: confirmation.ToolCallID, Choice: domain.ChoiceCancel,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	waitForTurn(t, svc, accepted.TurnID)
	queuedTurn := waitForTurn(t, svc, queued.TurnID)
	assert.Equal(t, domain.TurnStatusDone, queuedTurn.Status)
}

func TestConfirmUnknownToolCallReturns404(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := postJSON(t, h, "/v1/chat/confirm", domain.ConfirmRequest{
		SessionID: "s1", ToolCallID: "tc_missing", Choice: "cancel",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelIsIdempotent(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := postJSON(t, h, "/v1/chat/cancel", domain.CancelRequest{SessionID: "idle"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSessionMessages(t *testing.T) {
	svc, mock, h := newTestServer(t)
	mock.Enqueue(&llm.GenerateResult{Text: "answer"})

	rec := postJSON(t, h, "/v1/chat", domain.ChatRequest{SessionID: "s1", Message: "question"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted domain.ChatAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	waitForTurn(t, svc, accepted.TurnID)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/messages", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "question", resp.Messages[0].Content)
	assert.Equal(t, "answer", resp.Messages[1].Content)
}

func TestGetBalance(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/balance", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID  string `json:"user_id"`
		Balance int64  `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, int64(0), resp.Balance)
}

func TestHealth(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStreamRequiresSessionID(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/stream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
