package skills

import (
	"encoding/json"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

func fixedCost(n int64) domain.CostFunc {
	return func(json.RawMessage) int64 { return n }
}

// DefaultCatalog is the built-in advertising skill catalog. Declaration
// order matters: the selector breaks ties by it.
func DefaultCatalog() []Skill {
	return []Skill{
		{
			Name:     "creative",
			Keywords: []string{"creative", "ad copy", "headline", "image", "banner", "video", "generate ad", "slogan", "caption"},
			Tools: []domain.ToolDefinition{
				{
					Name:        "creative.generate",
					Description: "Generate ad creative (headline, body copy, call to action) for a campaign brief.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"brief":{"type":"string"},"tone":{"type":"string"},"platform":{"type":"string"}},"required":["brief"]}`),
					Backend:     domain.BackendModelSkill,
					CreditCost:  fixedCost(5),
					Prompt: "You are an advertising copywriter. Produce a headline, body copy and " +
						"call to action for the given brief. Respond as JSON with keys headline, body, cta.",
				},
				{
					Name:        "creative.variations",
					Description: "Produce alternative phrasings of an existing ad creative.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"creative":{"type":"string"},"count":{"type":"integer"}},"required":["creative"]}`),
					Backend:     domain.BackendModelSkill,
					CreditCost:  fixedCost(3),
					Prompt: "You are an advertising copywriter. Rewrite the given creative in the requested " +
						"number of distinct variations, keeping the original intent. Respond as a JSON array of strings.",
				},
			},
		},
		{
			Name:     "analytics",
			Keywords: []string{"performance", "report", "metrics", "ctr", "conversion", "conversions", "roas", "spend", "analytics", "ab test", "a/b test", "winner", "significance"},
			Tools: []domain.ToolDefinition{
				{
					Name:        "metrics.query",
					Description: "Query campaign performance metrics from the data platform.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"campaign_id":{"type":"string"},"metric":{"type":"string"},"range_days":{"type":"integer"}},"required":["campaign_id","metric"]}`),
					Backend:     domain.BackendRPC,
				},
				{
					Name:        "report.summarize",
					Description: "Summarize a performance report into plain-language findings.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"report":{"type":"object"}},"required":["report"]}`),
					Backend:     domain.BackendModelSkill,
					CreditCost:  fixedCost(2),
					Prompt: "You are a performance-marketing analyst. Summarize the given report data into " +
						"three concise findings and one recommendation.",
				},
				{
					Name:        "abtest.winner",
					Description: "Pick the statistically significant winner of a two-variant A/B test.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"variant_a":{"type":"object","properties":{"label":{"type":"string"},"visits":{"type":"integer"},"conversions":{"type":"integer"}}},"variant_b":{"type":"object","properties":{"label":{"type":"string"},"visits":{"type":"integer"},"conversions":{"type":"integer"}}}},"required":["variant_a","variant_b"]}`),
					Backend:     domain.BackendUtility,
				},
			},
		},
		{
			Name:     "automation",
			Keywords: []string{"pause", "resume", "budget", "schedule", "automate", "automation", "rule", "campaign"},
			Tools: []domain.ToolDefinition{
				{
					Name:                 "campaign.pause",
					Description:          "Pause a running campaign.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"campaign_id":{"type":"string"}},"required":["campaign_id"]}`),
					Backend:              domain.BackendRPC,
					RequiresConfirmation: true,
					ConfirmOptions: []domain.ConfirmOption{
						{ID: "pause_now", Label: "Pause immediately"},
						{ID: "pause_eod", Label: "Pause at end of day", Payload: json.RawMessage(`{"at":"end_of_day"}`)},
					},
				},
				{
					Name:                 "budget.update",
					Description:          "Change a campaign's daily budget.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"campaign_id":{"type":"string"},"daily_budget":{"type":"number"}},"required":["campaign_id","daily_budget"]}`),
					Backend:              domain.BackendRPC,
					RequiresConfirmation: true,
					CreditCost:           fixedCost(1),
					ConfirmOptions: []domain.ConfirmOption{
						{ID: "apply", Label: "Apply new budget"},
					},
				},
				{
					Name:        "rule.schedule",
					Description: "Create a scheduled automation rule for a campaign.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"campaign_id":{"type":"string"},"rule":{"type":"string"},"cron":{"type":"string"}},"required":["campaign_id","rule"]}`),
					Backend:     domain.BackendRPC,
				},
			},
		},
		{
			Name:     "landing",
			Keywords: []string{"landing", "landing page", "page", "publish", "website", "funnel"},
			Tools: []domain.ToolDefinition{
				{
					Name:                 "landing.generate",
					Description:          "Generate landing page copy and section layout for an offer.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"offer":{"type":"string"},"audience":{"type":"string"}},"required":["offer"]}`),
					Backend:              domain.BackendModelSkill,
					RequiresConfirmation: true,
					CreditCost:           fixedCost(10),
					ConfirmOptions: []domain.ConfirmOption{
						{ID: "generate", Label: "Generate page (10 credits)"},
					},
					Prompt: "You are a conversion-rate specialist. Design a landing page for the given offer: " +
						"hero section, three benefit sections, social proof and a closing call to action. Respond as JSON.",
				},
				{
					Name:                 "landing.publish",
					Description:          "Publish a generated landing page to the hosting platform.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"page_id":{"type":"string"},"domain":{"type":"string"}},"required":["page_id"]}`),
					Backend:              domain.BackendRPC,
					RequiresConfirmation: true,
					ConfirmOptions: []domain.ConfirmOption{
						{ID: "publish", Label: "Publish now"},
					},
				},
			},
		},
		{
			Name:     GeneralSkill,
			Keywords: nil, // fallback, never keyword-matched
			Tools: []domain.ToolDefinition{
				{
					Name:        "calc.evaluate",
					Description: "Evaluate an arithmetic expression.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string"}},"required":["expression"]}`),
					Backend:     domain.BackendUtility,
				},
				{
					Name:        "date.now",
					Description: "Return the current date and time in UTC.",
					InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
					Backend:     domain.BackendUtility,
				},
			},
		},
	}
}
