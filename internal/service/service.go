// Package service implements the turn orchestration loop: skill selection,
// model planning, tool dispatch, confirmation gating and credit accounting.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/adpilot-ai/adpilot/internal/adapter/backend"
	"github.com/adpilot-ai/adpilot/internal/adapter/llm"
	"github.com/adpilot-ai/adpilot/internal/config"
	"github.com/adpilot-ai/adpilot/internal/ledger"
	store "github.com/adpilot-ai/adpilot/internal/repository"
	"github.com/adpilot-ai/adpilot/internal/skills"
	"github.com/adpilot-ai/adpilot/internal/stream"
	"github.com/adpilot-ai/adpilot/internal/tools"
	"github.com/adpilot-ai/adpilot/policy"
)

// ErrConfirmationNotFound is returned when a confirmation resolution
// references an unknown or already-resolved tool call.
var ErrConfirmationNotFound = errors.New("confirmation not found")

type Service struct {
	store     store.Store
	ledger    *ledger.Ledger
	registry  *skills.Registry
	selector  *skills.Selector
	utilities *tools.Registry
	llm       llm.Client
	backend   *backend.Client
	broker    *stream.Broker
	policy    *policy.Engine
	config    *config.Config

	mu      sync.Mutex
	active  map[string]*turnState          // session id -> in-flight turn
	queued  map[string][]*queuedTurn       // session id -> turns waiting their slot
	pending map[string]chan confirmOutcome // tool call id -> resolution
}

func New(
	st store.Store,
	ldg *ledger.Ledger,
	registry *skills.Registry,
	selector *skills.Selector,
	utilities *tools.Registry,
	llmClient llm.Client,
	backendClient *backend.Client,
	broker *stream.Broker,
	policyEngine *policy.Engine,
	cfg *config.Config,
) *Service {
	return &Service{
		store:     st,
		ledger:    ldg,
		registry:  registry,
		selector:  selector,
		utilities: utilities,
		llm:       llmClient,
		backend:   backendClient,
		broker:    broker,
		policy:    policyEngine,
		config:    cfg,
		active:    make(map[string]*turnState),
		queued:    make(map[string][]*queuedTurn),
		pending:   make(map[string]chan confirmOutcome),
	}
}

// Balance returns the user's current credit balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}
