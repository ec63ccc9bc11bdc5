package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/internal/metrics"
)

type confirmOutcome struct {
	choice string
}

// awaitConfirmation persists a confirmation request, surfaces it on the
// stream and blocks the tool call until the caller resolves it. The turn
// shows WAITING_CONFIRMATION while any call is gated.
func (s *Service) awaitConfirmation(ctx context.Context, ts *turnState, tc *domain.ToolCall, def *domain.ToolDefinition) (string, *domain.ToolError) {
	cr := &domain.ConfirmationRequest{
		ConfirmationID: "cr_" + uuid.New().String()[:8],
		TurnID:         ts.turn.TurnID,
		SessionID:      ts.turn.SessionID,
		ToolCallID:     tc.ToolCallID,
		ToolName:       tc.ToolName,
		Options:        def.ConfirmOptions,
		Status:         domain.ConfirmationStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateConfirmation(ctx, cr); err != nil {
		return "", &domain.ToolError{Code: domain.ToolErrExecutionFailed, Message: "failed to create confirmation"}
	}
	if _, err := s.store.UpdateToolCallStatus(ctx, tc.ToolCallID, domain.ToolCallStatusAwaitingConfirmation); err != nil {
		log.Printf("ERROR: failed to mark tool call awaiting confirmation: %v", err)
	}

	ch := make(chan confirmOutcome, 1)
	s.mu.Lock()
	s.pending[tc.ToolCallID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, tc.ToolCallID)
		s.mu.Unlock()
	}()

	s.enterWaiting(ts)
	defer s.leaveWaiting(ts)

	s.publish(ts, domain.StreamEventConfirmationRequest, domain.ConfirmationPayload{
		ConfirmationID: cr.ConfirmationID,
		ToolCallID:     tc.ToolCallID,
		ToolName:       tc.ToolName,
		Options:        def.ConfirmOptions,
	})

	select {
	case <-ctx.Done():
		if _, err := s.store.ResolveConfirmation(context.Background(), cr.ConfirmationID, domain.ConfirmationStatusCancelled, domain.ChoiceCancel); err != nil {
			log.Printf("ERROR: failed to cancel confirmation: %v", err)
		}
		metrics.ConfirmationsTotal.WithLabelValues("turn_cancelled").Inc()
		return "", &domain.ToolError{Code: domain.ToolErrCancelled, Message: "turn cancelled while awaiting confirmation"}
	case outcome := <-ch:
		if outcome.choice == domain.ChoiceCancel {
			metrics.ConfirmationsTotal.WithLabelValues("cancelled").Inc()
			return "", &domain.ToolError{Code: domain.ToolErrCancelled, Message: "cancelled by user"}
		}
		metrics.ConfirmationsTotal.WithLabelValues("confirmed").Inc()
		return outcome.choice, nil
	}
}

// Confirm resolves a pending confirmation with the caller's choice.
// Resolution is idempotent: a second resolution for the same tool call is
// rejected without side effects.
func (s *Service) Confirm(ctx context.Context, req domain.ConfirmRequest) error {
	cr, err := s.store.GetConfirmationByToolCall(ctx, req.ToolCallID)
	if err != nil {
		return fmt.Errorf("failed to load confirmation: %w", err)
	}
	if cr == nil || cr.SessionID != req.SessionID {
		return ErrConfirmationNotFound
	}
	if cr.Status != domain.ConfirmationStatusPending {
		return fmt.Errorf("%w: already resolved", ErrConfirmationNotFound)
	}
	if !validChoice(cr.Options, req.Choice) {
		return fmt.Errorf("invalid choice %q", req.Choice)
	}

	status := domain.ConfirmationStatusResolved
	if req.Choice == domain.ChoiceCancel {
		status = domain.ConfirmationStatusCancelled
	}
	applied, err := s.store.ResolveConfirmation(ctx, cr.ConfirmationID, status, req.Choice)
	if err != nil {
		return fmt.Errorf("failed to resolve confirmation: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: already resolved", ErrConfirmationNotFound)
	}

	s.mu.Lock()
	ch := s.pending[req.ToolCallID]
	s.mu.Unlock()
	if ch != nil {
		ch <- confirmOutcome{choice: req.Choice}
	} else {
		// Resolved after a restart or turn timeout; nothing to resume.
		log.Printf("WARN: confirmation %s resolved with no waiting tool call", cr.ConfirmationID)
	}
	return nil
}

// RunConfirmationTimeoutMonitor cancels confirmations that stay pending
// past the configured timeout. A zero timeout disables the sweep entirely.
func (s *Service) RunConfirmationTimeoutMonitor(ctx context.Context) {
	if s.config.ConfirmTimeout <= 0 {
		return
	}
	interval := s.config.ConfirmTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredConfirmations(ctx)
		}
	}
}

func (s *Service) sweepExpiredConfirmations(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.ConfirmTimeout)
	expired, err := s.store.ListExpiredConfirmations(ctx, cutoff, 100)
	if err != nil {
		log.Printf("ERROR: failed to list expired confirmations: %v", err)
		return
	}
	for _, cr := range expired {
		applied, err := s.store.ResolveConfirmation(ctx, cr.ConfirmationID, domain.ConfirmationStatusCancelled, domain.ChoiceCancel)
		if err != nil {
			log.Printf("ERROR: failed to expire confirmation %s: %v", cr.ConfirmationID, err)
			continue
		}
		if !applied {
			continue
		}
		log.Printf("INFO: confirmation %s expired after %s", cr.ConfirmationID, s.config.ConfirmTimeout)
		metrics.ConfirmationsTotal.WithLabelValues("expired").Inc()

		s.mu.Lock()
		ch := s.pending[cr.ToolCallID]
		s.mu.Unlock()
		if ch != nil {
			ch <- confirmOutcome{choice: domain.ChoiceCancel}
		}
	}
}

func (s *Service) enterWaiting(ts *turnState) {
	ts.mu.Lock()
	ts.waiting++
	first := ts.waiting == 1
	ts.mu.Unlock()
	if first {
		if err := s.store.UpdateTurnStatus(context.Background(), ts.turn.TurnID, domain.TurnStatusWaitingConfirmation, ts.turn.Steps); err != nil {
			log.Printf("ERROR: failed to mark turn waiting: %v", err)
		}
	}
}

func (s *Service) leaveWaiting(ts *turnState) {
	ts.mu.Lock()
	ts.waiting--
	last := ts.waiting == 0
	ts.mu.Unlock()
	if last {
		if err := s.store.UpdateTurnStatus(context.Background(), ts.turn.TurnID, domain.TurnStatusRunning, ts.turn.Steps); err != nil {
			log.Printf("ERROR: failed to mark turn running: %v", err)
		}
	}
}

func validChoice(options []domain.ConfirmOption, choice string) bool {
	if choice == domain.ChoiceCancel {
		return true
	}
	if len(options) == 0 {
		// Plain yes/no confirmation.
		return choice == "confirm"
	}
	for _, opt := range options {
		if opt.ID == choice {
			return true
		}
	}
	return false
}
