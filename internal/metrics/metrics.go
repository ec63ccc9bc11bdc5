// Package metrics exposes prometheus instrumentation for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts completed turns by terminal status.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adpilot",
		Name:      "turns_total",
		Help:      "Completed turns by terminal status.",
	}, []string{"status"})

	// ToolCallsTotal counts tool calls by backend kind and terminal status.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adpilot",
		Name:      "tool_calls_total",
		Help:      "Tool calls by backend kind and terminal status.",
	}, []string{"backend", "status"})

	// ModelCallDuration observes model service latency per call.
	ModelCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "adpilot",
		Name:      "model_call_duration_seconds",
		Help:      "Model service call latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// LedgerOpsTotal counts ledger operations by kind.
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adpilot",
		Name:      "ledger_ops_total",
		Help:      "Ledger operations by kind.",
	}, []string{"op"})

	// ConfirmationsTotal counts confirmation outcomes.
	ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adpilot",
		Name:      "confirmations_total",
		Help:      "Confirmation requests by outcome.",
	}, []string{"outcome"})
)
