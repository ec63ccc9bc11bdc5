package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-ai/adpilot/policy"
)

func newEngine(t *testing.T) *policy.Engine {
	t.Helper()
	e, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return e
}

func TestDefaultPolicyDecisions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input map[string]interface{}
		want  string
	}{
		{
			"metrics query allowed",
			map[string]interface{}{"tool_name": "metrics.query", "args": map[string]interface{}{}},
			policy.DecisionAllow,
		},
		{
			"campaign pause needs confirmation",
			map[string]interface{}{"tool_name": "campaign.pause", "args": map[string]interface{}{"campaign_id": "c1"}},
			policy.DecisionRequireConfirmation,
		},
		{
			"landing publish needs confirmation",
			map[string]interface{}{"tool_name": "landing.publish", "args": map[string]interface{}{}},
			policy.DecisionRequireConfirmation,
		},
		{
			"small budget change allowed",
			map[string]interface{}{"tool_name": "budget.update", "args": map[string]interface{}{"daily_budget": 100}},
			policy.DecisionAllow,
		},
		{
			"large budget change needs confirmation",
			map[string]interface{}{"tool_name": "budget.update", "args": map[string]interface{}{"daily_budget": 800}},
			policy.DecisionRequireConfirmation,
		},
		{
			"huge budget change blocked",
			map[string]interface{}{"tool_name": "budget.update", "args": map[string]interface{}{"daily_budget": 50000}},
			policy.DecisionBlock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := e.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestBadPolicyFailsConstruction(t *testing.T) {
	_, err := policy.NewEngine(context.Background(), "this is not rego")
	assert.Error(t, err)
}
