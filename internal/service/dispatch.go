package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adpilot-ai/adpilot/internal/adapter/backend"
	"github.com/adpilot-ai/adpilot/internal/adapter/llm"
	"github.com/adpilot-ai/adpilot/internal/domain"
	"github.com/adpilot-ai/adpilot/internal/ledger"
	"github.com/adpilot-ai/adpilot/internal/metrics"
	"github.com/adpilot-ai/adpilot/policy"
)

// dispatchStep executes one planning step's tool calls with bounded
// parallelism. Results come back as tool messages in request order
// regardless of completion order.
func (s *Service) dispatchStep(ctx context.Context, ts *turnState, calls []llm.ToolCallRequest) []domain.Message {
	results := make([]domain.Message, len(calls))
	parallel := s.config.MaxParallelTools
	if parallel < 1 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCallRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.dispatchCall(ctx, ts, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// dispatchCall runs one tool call end to end: registry lookup, policy
// check, confirmation gate, credit reservation, execution with retries,
// and ledger finalization.
func (s *Service) dispatchCall(ctx context.Context, ts *turnState, call llm.ToolCallRequest) domain.Message {
	tc := &domain.ToolCall{
		ToolCallID: "tc_" + uuid.New().String()[:8],
		TurnID:     ts.turn.TurnID,
		ToolName:   call.Name,
		Status:     domain.ToolCallStatusPending,
		Args:       call.Args,
		CreatedAt:  time.Now(),
	}

	def, err := s.registry.Get(call.Name)
	if err != nil {
		tc.Backend = domain.BackendUtility
		if cerr := s.store.CreateToolCall(ctx, tc); cerr != nil {
			log.Printf("ERROR: failed to create tool call: %v", cerr)
		}
		return s.completeCall(ctx, ts, tc, call, 0, nil, &domain.ToolError{
			Code:    domain.ToolErrToolNotFound,
			Message: fmt.Sprintf("unknown tool %s", call.Name),
		})
	}
	tc.Backend = def.Backend
	if err := s.store.CreateToolCall(ctx, tc); err != nil {
		log.Printf("ERROR: failed to create tool call: %v", err)
	}

	needConfirm, toolErr := s.checkPolicy(ctx, ts, def, call.Args)
	if toolErr != nil {
		return s.completeCall(ctx, ts, tc, call, 0, nil, toolErr)
	}

	if needConfirm {
		choice, toolErr := s.awaitConfirmation(ctx, ts, tc, def)
		if toolErr != nil {
			return s.completeCall(ctx, ts, tc, call, 0, nil, toolErr)
		}
		// The chosen option can refine the arguments.
		if payload := optionPayload(def, choice); payload != nil {
			call.Args = mergeArgs(call.Args, payload)
			tc.Args = call.Args
		}
	}

	// Credits are reserved only after any confirmation: a cancelled
	// request must leave the balance untouched.
	var cost int64
	if def.CreditCost != nil {
		cost = def.CreditCost(call.Args)
	}
	if cost > 0 {
		if err := s.ledger.Reserve(ctx, ts.turn.UserID, cost, tc.ToolCallID); err != nil {
			metrics.LedgerOpsTotal.WithLabelValues("reserve_failed").Inc()
			toolErr := &domain.ToolError{Code: domain.ToolErrExecutionFailed, Message: err.Error()}
			var short *ledger.InsufficientBalanceError
			if errors.As(err, &short) {
				toolErr = &domain.ToolError{
					Code:    domain.ToolErrInsufficientCredits,
					Message: short.Error(),
				}
			}
			return s.completeCall(ctx, ts, tc, call, 0, nil, toolErr)
		}
		metrics.LedgerOpsTotal.WithLabelValues("reserve").Inc()
	}

	if _, err := s.store.UpdateToolCallStatus(ctx, tc.ToolCallID, domain.ToolCallStatusRunning); err != nil {
		log.Printf("ERROR: failed to mark tool call running: %v", err)
	}

	result, toolErr, retries := s.execute(ctx, ts, def, call)

	if cost > 0 {
		op := "commit"
		fin := s.ledger.Commit
		if toolErr != nil {
			op = "refund"
			fin = s.ledger.Refund
		}
		if err := fin(ctx, tc.ToolCallID); err != nil {
			log.Printf("ERROR: failed to %s credits for %s: %v", op, tc.ToolCallID, err)
		} else {
			metrics.LedgerOpsTotal.WithLabelValues(op).Inc()
		}
	}

	return s.completeCall(ctx, ts, tc, call, retries, result, toolErr)
}

// execute routes a tool call to its backend. Utilities run in-process and
// are never retried; model skills and backend RPCs retry transient
// failures with exponential backoff.
func (s *Service) execute(ctx context.Context, ts *turnState, def *domain.ToolDefinition, call llm.ToolCallRequest) (json.RawMessage, *domain.ToolError, int) {
	switch def.Backend {
	case domain.BackendUtility:
		result, err := s.utilities.Execute(ctx, def.Name, call.Args)
		if err != nil {
			return nil, &domain.ToolError{Code: domain.ToolErrExecutionFailed, Message: err.Error()}, 0
		}
		return result, nil, 0

	case domain.BackendModelSkill:
		return s.executeWithRetry(ctx, func(ctx context.Context) (json.RawMessage, *domain.ToolError) {
			return s.executeModelSkill(ctx, ts, def, call.Args)
		})

	case domain.BackendRPC:
		return s.executeWithRetry(ctx, func(ctx context.Context) (json.RawMessage, *domain.ToolError) {
			result, err := s.backend.CallTool(ctx, def.Name, call.Args)
			if err != nil {
				return nil, backendToolError(err)
			}
			return result, nil
		})
	}
	return nil, &domain.ToolError{
		Code:    domain.ToolErrExecutionFailed,
		Message: fmt.Sprintf("unknown backend kind %s", def.Backend),
	}, 0
}

// executeWithRetry runs fn up to 1+MaxToolRetries times, backing off
// RetryBaseDelay*2^attempt between attempts. Non-retryable errors stop
// immediately.
func (s *Service) executeWithRetry(ctx context.Context, fn func(ctx context.Context) (json.RawMessage, *domain.ToolError)) (json.RawMessage, *domain.ToolError, int) {
	var lastErr *domain.ToolError
	for attempt := 0; attempt <= s.config.MaxToolRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, s.config.RetryBaseDelay<<(attempt-1)); err != nil {
				return nil, &domain.ToolError{Code: domain.ToolErrCancelled, Message: err.Error()}, attempt - 1
			}
		}
		result, toolErr := fn(ctx)
		if toolErr == nil {
			return result, nil, attempt
		}
		lastErr = toolErr
		if !toolErr.Retryable || ctx.Err() != nil {
			return nil, lastErr, attempt
		}
		log.Printf("WARN: tool execution failed (attempt %d): %v", attempt+1, toolErr)
	}
	return nil, lastErr, s.config.MaxToolRetries
}

// executeModelSkill delegates the tool to the model service with the
// skill's own system prompt.
func (s *Service) executeModelSkill(ctx context.Context, ts *turnState, def *domain.ToolDefinition, args json.RawMessage) (json.RawMessage, *domain.ToolError) {
	start := time.Now()
	res, err := s.llm.Generate(ctx, &llm.GenerateRequest{
		System: def.Prompt,
		Messages: []domain.Message{{
			Role:    domain.RoleUser,
			Content: string(args),
		}},
	}, nil)
	metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &domain.ToolError{
			Code:      domain.ToolErrExecutionFailed,
			Message:   err.Error(),
			Retryable: llm.IsRetryable(err),
		}
	}
	if res.Usage != nil {
		ts.mu.Lock()
		ts.usage.PromptTokens += res.Usage.PromptTokens
		ts.usage.CompletionTokens += res.Usage.CompletionTokens
		ts.usage.TotalTokens += res.Usage.TotalTokens
		ts.mu.Unlock()
	}
	out, _ := json.Marshal(map[string]string{"text": res.Text})
	return out, nil
}

// checkPolicy evaluates the OPA confirmation policy. Block decisions fail
// the call; require_confirmation decisions route through the confirmation
// gate even when the static flag did not ask for one.
func (s *Service) checkPolicy(ctx context.Context, ts *turnState, def *domain.ToolDefinition, args json.RawMessage) (bool, *domain.ToolError) {
	needConfirm := def.RequiresConfirmation

	input := map[string]interface{}{
		"tool_name": def.Name,
		"user_id":   ts.turn.UserID,
		"args":      map[string]interface{}{},
	}
	var argsMap map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err == nil {
			input["args"] = argsMap
		}
	}

	decision, err := s.policy.Evaluate(ctx, input)
	if err != nil {
		log.Printf("ERROR: policy evaluation failed: %v", err)
		return false, &domain.ToolError{Code: domain.ToolErrExecutionFailed, Message: "policy evaluation failed"}
	}
	switch decision {
	case policy.DecisionBlock:
		return false, &domain.ToolError{
			Code:    domain.ToolErrBlocked,
			Message: fmt.Sprintf("operation %s blocked by policy", def.Name),
		}
	case policy.DecisionRequireConfirmation:
		needConfirm = true
	}
	return needConfirm, nil
}

// completeCall persists the terminal state, emits metadata for structured
// results and renders the tool message the model sees next step.
func (s *Service) completeCall(ctx context.Context, ts *turnState, tc *domain.ToolCall, call llm.ToolCallRequest, retries int, result json.RawMessage, toolErr *domain.ToolError) domain.Message {
	status := domain.ToolCallStatusSucceeded
	if toolErr != nil {
		status = domain.ToolCallStatusFailed
	}
	if _, err := s.store.UpdateToolCallResult(ctx, tc.ToolCallID, status, retries, result, toolErr); err != nil {
		log.Printf("ERROR: failed to persist tool call result: %v", err)
	}
	metrics.ToolCallsTotal.WithLabelValues(string(tc.Backend), string(status)).Inc()

	var content string
	if toolErr != nil {
		payload, _ := json.Marshal(map[string]interface{}{"error": toolErr})
		content = string(payload)
	} else {
		content = string(result)
		if tc.Backend == domain.BackendRPC {
			s.publish(ts, domain.StreamEventMetadata, domain.MetadataPayload{
				ToolCallID: tc.ToolCallID,
				ToolName:   tc.ToolName,
				Data:       result,
			})
		}
	}

	return domain.Message{
		MessageID:  "msg_" + uuid.New().String()[:8],
		SessionID:  ts.turn.SessionID,
		TurnID:     ts.turn.TurnID,
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		CreatedAt:  time.Now(),
	}
}

// backendToolError maps a backend protocol error onto the stable tool
// error codes, preserving retryability.
func backendToolError(err error) *domain.ToolError {
	var be *backend.Error
	if !errors.As(err, &be) {
		return &domain.ToolError{Code: domain.ToolErrConnectionFailed, Message: err.Error(), Retryable: true}
	}
	code := domain.ToolErrExecutionFailed
	switch be.Code {
	case backend.CodeConnectionFailed:
		code = domain.ToolErrConnectionFailed
	case backend.CodeTimeout:
		code = domain.ToolErrTimeout
	case backend.CodeToolNotFound:
		code = domain.ToolErrToolNotFound
	case backend.CodeInvalidParams:
		code = domain.ToolErrInvalidParams
	}
	return &domain.ToolError{Code: code, Message: be.Message, Retryable: be.Retryable()}
}

func optionPayload(def *domain.ToolDefinition, choice string) json.RawMessage {
	for _, opt := range def.ConfirmOptions {
		if opt.ID == choice {
			return opt.Payload
		}
	}
	return nil
}

// mergeArgs overlays the option payload's top-level keys onto the call
// arguments.
func mergeArgs(args, payload json.RawMessage) json.RawMessage {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(args, &base); err != nil || base == nil {
		base = make(map[string]json.RawMessage)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(payload, &overlay); err != nil {
		return args
	}
	for k, v := range overlay {
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return args
	}
	return merged
}
