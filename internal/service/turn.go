package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adpilot-ai/adpilot/internal/adapter/llm"
	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/internal/metrics"
	"github.com/adpilot-ai/adpilot/internal/skills"
	"github.com/adpilot-ai/adpilot/internal/stream"
)

const basePrompt = `You are AdPilot, an advertising operations assistant. You manage
campaigns, creatives, budgets, landing pages and performance reports on the
user's behalf. Use the provided tools when the task needs platform data or a
platform action; answer directly when it does not. Be concise and concrete.`

// turnState is the in-memory state of one in-flight turn. The turn
// goroutine owns history, buffered and usage; waiting is shared with the
// parallel dispatch goroutines and guarded by mu.
type turnState struct {
	turn    *domain.Turn
	session *domain.Session
	cancel  context.CancelFunc

	selected []*skills.Skill
	tools    []domain.ToolDefinition

	history  []domain.Message
	buffered []domain.Message
	usage    domain.Usage

	mu      sync.Mutex
	waiting int // tool calls currently awaiting confirmation
}

// queuedTurn is a turn accepted while its session was mid-turn. Turns
// within a session are strictly serialized, so it waits for the slot.
type queuedTurn struct {
	ts      *turnState
	message string
}

// StartTurn accepts a user message, persists it, and launches the turn
// asynchronously. A session processes one turn at a time; a message for a
// busy session is queued behind the in-flight turn, never interleaved.
func (s *Service) StartTurn(ctx context.Context, req domain.ChatRequest) (*domain.ChatAccepted, error) {
	userID := req.UserID
	if userID == "" {
		userID = "default_user"
	}

	session, err := s.store.GetOrCreateSession(ctx, req.SessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, busy := s.active[session.SessionID]
	if !busy {
		// A non-terminal turn with no in-memory state was orphaned by a
		// restart; close it out so the session is not wedged.
		if stale, err := s.store.GetActiveTurn(ctx, session.SessionID); err != nil {
			return nil, fmt.Errorf("failed to check active turn: %w", err)
		} else if stale != nil {
			errData, _ := json.Marshal(&domain.TurnError{
				Code: domain.ErrCodeInternal, Message: "orchestrator restarted",
			})
			if err := s.store.UpdateTurnCompleted(ctx, stale.TurnID, domain.TurnStatusFailed, errData); err != nil {
				log.Printf("ERROR: failed to close stale turn %s: %v", stale.TurnID, err)
			}
		}
	}

	now := time.Now()
	turn := &domain.Turn{
		TurnID:    "turn_" + uuid.New().String()[:8],
		SessionID: session.SessionID,
		UserID:    session.UserID,
		Status:    domain.TurnStatusCreated,
		StartedAt: now,
	}
	if err := s.store.CreateTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("failed to create turn: %w", err)
	}

	// The user message is durable from the moment the turn is accepted.
	userMsg := &domain.Message{
		MessageID:   "msg_" + uuid.New().String()[:8],
		SessionID:   session.SessionID,
		TurnID:      turn.TurnID,
		Role:        domain.RoleUser,
		Content:     req.Message,
		Attachments: req.Attachments,
		CreatedAt:   now,
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	ts := &turnState{session: session, turn: turn}
	if busy {
		s.queued[session.SessionID] = append(s.queued[session.SessionID], &queuedTurn{ts: ts, message: req.Message})
	} else {
		s.active[session.SessionID] = ts
		s.launch(ts, req.Message)
	}

	return &domain.ChatAccepted{SessionID: session.SessionID, TurnID: turn.TurnID}, nil
}

// launch runs the turn in its own goroutine and hands the session slot to
// the next queued turn when it finishes. The turn timeout starts here, not
// at enqueue time.
func (s *Service) launch(ts *turnState, message string) {
	runCtx, cancel := context.WithTimeout(context.Background(), s.config.TurnTimeout)
	ts.cancel = cancel
	go func() {
		defer cancel()
		s.runTurn(runCtx, ts, message)
		s.next(ts.session.SessionID)
	}()
}

func (s *Service) next(sessionID string) {
	s.mu.Lock()
	queue := s.queued[sessionID]
	if len(queue) == 0 {
		delete(s.active, sessionID)
		s.mu.Unlock()
		return
	}
	head := queue[0]
	if len(queue) == 1 {
		delete(s.queued, sessionID)
	} else {
		s.queued[sessionID] = queue[1:]
	}
	s.active[sessionID] = head.ts
	s.mu.Unlock()
	s.launch(head.ts, head.message)
}

// CancelTurn cancels the session's in-flight turn. Cancelling an idle
// session is a no-op.
func (s *Service) CancelTurn(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	ts := s.active[sessionID]
	s.mu.Unlock()
	if ts == nil || ts.cancel == nil {
		return nil
	}
	ts.cancel()
	return nil
}

func (s *Service) runTurn(ctx context.Context, ts *turnState, userMessage string) {
	turn := ts.turn
	if err := s.store.UpdateTurnStatus(ctx, turn.TurnID, domain.TurnStatusRunning, 0); err != nil {
		log.Printf("ERROR: failed to update turn status: %v", err)
	}

	// Skills are selected once per turn from the user message; the tool
	// set stays fixed across planning steps.
	ts.selected = s.selector.Select(userMessage)
	ts.tools = s.registry.Tools(ts.selected)

	history, err := s.store.GetMessages(ctx, turn.SessionID, s.config.HistoryLimit)
	if err != nil {
		log.Printf("WARN: failed to load history: %v", err)
	}
	ts.history = history

	system := buildSystemPrompt(ts.selected)

	for step := 1; step <= s.config.MaxSteps; step++ {
		if ctx.Err() != nil {
			s.finishTurn(ts, domain.TurnStatusCancelled, &domain.TurnError{
				Code: domain.ErrCodeCancelled, Message: "turn cancelled",
			})
			return
		}
		turn.Steps = step
		if err := s.store.UpdateTurnStatus(ctx, turn.TurnID, domain.TurnStatusRunning, step); err != nil {
			log.Printf("ERROR: failed to update turn steps: %v", err)
		}

		res, err := s.generate(ctx, ts, &llm.GenerateRequest{
			System:   system,
			Messages: append(append([]domain.Message{}, ts.history...), ts.buffered...),
			Tools:    ts.tools,
		})
		if err != nil {
			code := domain.ErrCodeModelUnavailable
			if ctx.Err() != nil {
				code = domain.ErrCodeCancelled
			}
			s.finishTurn(ts, failStatus(code), &domain.TurnError{Code: code, Message: err.Error()})
			return
		}
		if res.Usage != nil {
			ts.usage.PromptTokens += res.Usage.PromptTokens
			ts.usage.CompletionTokens += res.Usage.CompletionTokens
			ts.usage.TotalTokens += res.Usage.TotalTokens
		}

		assistant := domain.Message{
			MessageID: "msg_" + uuid.New().String()[:8],
			SessionID: turn.SessionID,
			TurnID:    turn.TurnID,
			Role:      domain.RoleAssistant,
			Content:   res.Text,
			CreatedAt: time.Now(),
		}
		for _, tc := range res.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, domain.ToolCallRecord{
				ID: tc.ID, Name: tc.Name, Args: tc.Args,
			})
		}
		ts.buffered = append(ts.buffered, assistant)

		if len(res.ToolCalls) == 0 {
			s.finishTurn(ts, domain.TurnStatusDone, nil)
			return
		}

		toolMsgs := s.dispatchStep(ctx, ts, res.ToolCalls)
		ts.buffered = append(ts.buffered, toolMsgs...)
	}

	s.finishTurn(ts, domain.TurnStatusFailed, &domain.TurnError{
		Code:    domain.ErrCodeTaskTooComplex,
		Message: fmt.Sprintf("turn exceeded %d planning steps", s.config.MaxSteps),
	})
}

// generate calls the model, streaming content deltas to subscribers.
// Transient failures are retried with exponential backoff, but never after
// text has already been streamed.
func (s *Service) generate(ctx context.Context, ts *turnState, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxToolRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, s.config.RetryBaseDelay<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		streamed := false
		start := time.Now()
		res, err := s.llm.Generate(ctx, req, func(text string) {
			streamed = true
			s.publish(ts, domain.StreamEventContent, domain.ContentPayload{Text: text})
		})
		metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			return res, nil
		}
		lastErr = err
		if streamed || !llm.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		log.Printf("WARN: model call failed (attempt %d): %v", attempt+1, err)
	}
	return nil, lastErr
}

// finishTurn persists the buffered messages, marks the turn terminal and
// emits the done event. Intermediate messages are only durable for turns
// that complete; a failed turn drops its partial output and records a
// single assistant error message instead.
func (s *Service) finishTurn(ts *turnState, status domain.TurnStatus, turnErr *domain.TurnError) {
	// Turn context may already be cancelled; persistence gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if status == domain.TurnStatusDone && len(ts.buffered) > 0 {
		if err := s.store.AppendMessages(ctx, ts.buffered); err != nil {
			log.Printf("ERROR: failed to persist turn messages: %v", err)
			status = domain.TurnStatusFailed
			turnErr = &domain.TurnError{Code: domain.ErrCodeInternal, Message: "failed to persist messages"}
		}
	}

	if status == domain.TurnStatusFailed && turnErr != nil {
		errMsg := &domain.Message{
			MessageID: "msg_" + uuid.New().String()[:8],
			SessionID: ts.turn.SessionID,
			TurnID:    ts.turn.TurnID,
			Role:      domain.RoleAssistant,
			Content:   fmt.Sprintf("Sorry, I could not complete this request (%s): %s", turnErr.Code, turnErr.Message),
			CreatedAt: time.Now(),
		}
		if err := s.store.CreateMessage(ctx, errMsg); err != nil {
			log.Printf("ERROR: failed to persist error message: %v", err)
		}
	}

	var errData []byte
	if turnErr != nil {
		errData, _ = json.Marshal(turnErr)
	}
	if err := s.store.UpdateTurnCompleted(ctx, ts.turn.TurnID, status, errData); err != nil {
		log.Printf("ERROR: failed to complete turn: %v", err)
	}
	metrics.TurnsTotal.WithLabelValues(string(status)).Inc()

	done := domain.DonePayload{Status: status, Error: turnErr}
	if ts.usage.TotalTokens > 0 {
		usage := ts.usage
		done.Usage = &usage
	}
	s.publish(ts, domain.StreamEventDone, done)
}

func (s *Service) publish(ts *turnState, eventType domain.StreamEventType, payload interface{}) {
	s.broker.Publish(ts.session.SessionID, stream.Event(eventType, ts.turn.TurnID, payload))
}

func buildSystemPrompt(selected []*skills.Skill) string {
	names := make([]string, 0, len(selected))
	for _, sk := range selected {
		names = append(names, sk.Name)
	}
	return basePrompt + "\n\nActive skills: " + strings.Join(names, ", ") + "."
}

func failStatus(code string) domain.TurnStatus {
	if code == domain.ErrCodeCancelled {
		return domain.TurnStatusCancelled
	}
	return domain.TurnStatusFailed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
