package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adpilot-ai/adpilot/internal/stats"
)

// NewBuiltinRegistry returns a registry wired with the utility tools of
// the default skill catalog.
func NewBuiltinRegistry(minSample int64) *Registry {
	r := NewRegistry()

	r.MustRegister("calc.evaluate", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal(args, &in); err != nil || in.Expression == "" {
			return nil, fmt.Errorf("invalid_params: expression is required")
		}
		val, err := Evaluate(in.Expression)
		if err != nil {
			return nil, fmt.Errorf("invalid_params: %v", err)
		}
		return json.Marshal(map[string]interface{}{"expression": in.Expression, "value": val})
	})

	r.MustRegister("date.now", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		now := time.Now().UTC()
		return json.Marshal(map[string]string{
			"date": now.Format("2006-01-02"),
			"time": now.Format("15:04:05"),
			"iso":  now.Format(time.RFC3339),
		})
	})

	r.MustRegister("abtest.winner", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			VariantA stats.VariantStats `json:"variant_a"`
			VariantB stats.VariantStats `json:"variant_b"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid_params: %v", err)
		}
		res, err := stats.Evaluate(in.VariantA, in.VariantB, minSample)
		if err != nil {
			return nil, fmt.Errorf("invalid_params: %v", err)
		}
		return json.Marshal(res)
	})

	return r
}
