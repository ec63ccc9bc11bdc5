// Package policy evaluates tool invocations against a rego ruleset.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions a policy evaluation can return.
const (
	DecisionAllow               = "allow"
	DecisionRequireConfirmation = "require_confirmation"
	DecisionBlock               = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.confirmation.decision"),
		rego.Module("confirmation.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the confirmation policy for a tool invocation.
// Input is a map with keys: tool_name, args, user_id.
// Returns one of the Decision* constants.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; an empty result means the module
		// is missing the rule entirely. Fail open to the static flag.
		return DecisionAllow, nil
	}

	val := results[0].Expressions[0].Value
	if s, ok := val.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the built-in confirmation ruleset for ad operations.
const DefaultPolicy = `
package confirmation

default decision = "allow"

# Campaign state changes always go through the user.
decision = "require_confirmation" {
	input.tool_name == "campaign.pause"
}

# Publishing a landing page is visible to the outside world.
decision = "require_confirmation" {
	input.tool_name == "landing.publish"
}

decision = "require_confirmation" {
	input.tool_name == "landing.generate"
}

# Budget changes above the review threshold need a human.
decision = "require_confirmation" {
	input.tool_name == "budget.update"
	input.args.daily_budget > 500
	input.args.daily_budget <= 10000
}

# Budget changes this large are never taken from chat.
decision = "block" {
	input.tool_name == "budget.update"
	input.args.daily_budget > 10000
}
`
