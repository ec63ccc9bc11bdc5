package service

import (
	"context"
	"fmt"

	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/internal/stream"
)

// GetMessages returns the most recent messages of a session in
// chronological order.
func (s *Service) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = s.config.HistoryLimit
	}
	messages, err := s.store.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// GetTurn returns a turn by id.
func (s *Service) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	turn, err := s.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return turn, nil
}

// Subscribe attaches a stream subscriber to a session.
func (s *Service) Subscribe(sessionID string) *stream.Subscription {
	return s.broker.Subscribe(sessionID)
}

// Unsubscribe detaches a stream subscriber.
func (s *Service) Unsubscribe(sub *stream.Subscription) {
	s.broker.Unsubscribe(sub)
}
