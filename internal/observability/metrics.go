// Package observability carries the ambient Prometheus metrics and
// OpenTelemetry tracing used across the Orchestrator, Workflow Engine,
// and Tool Dispatcher. Both are opt-in: a nil *prometheus.Registry or
// nil trace.Tracer yields collectors that work but report nowhere,
// so unit tests never need to touch a global registry.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms shared across components.
// Constructed once at process startup and passed by reference.
type Metrics struct {
	// ToolDispatchDuration measures one Tool Dispatcher Dispatch call.
	// Labels: tool_name, status (success|error).
	ToolDispatchDuration *prometheus.HistogramVec

	// ToolDispatchTotal counts Dispatch calls by tool and status.
	ToolDispatchTotal *prometheus.CounterVec

	// OrchestratorIterations counts how many tool-call iterations one
	// Chat invocation used (a single observation per call, not a
	// running counter), so the histogram's distribution shows how often
	// the loop runs to its bound.
	OrchestratorIterations prometheus.Histogram

	// OrchestratorHedgingSafetyNet counts hedging safety-net triggers.
	OrchestratorHedgingSafetyNet prometheus.Counter

	// WorkflowStepDuration measures one Workflow Engine step.
	// Labels: workflow_id, step_kind (llm|loop|synthesize).
	WorkflowStepDuration *prometheus.HistogramVec

	// WorkflowExits counts workflow completions by outcome.
	// Labels: workflow_id, reason (complete|cancelled|error).
	WorkflowExits *prometheus.CounterVec
}

// NewMetrics builds a Metrics instance. When reg is non-nil, every
// collector is registered against it; a nil reg produces working,
// unregistered collectors (grounded on the donor's promauto-based
// constructor, made optional rather than wired to the global
// DefaultRegisterer so package tests never risk a duplicate-registration
// panic across the suite).
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ToolDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voiceresearch_tool_dispatch_duration_seconds",
				Help:    "Duration of Tool Dispatcher Dispatch calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name", "status"},
		),
		ToolDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceresearch_tool_dispatch_total",
				Help: "Total Tool Dispatcher Dispatch calls by tool and status",
			},
			[]string{"tool_name", "status"},
		),
		OrchestratorIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voiceresearch_orchestrator_iterations",
				Help:    "Tool-call iterations used per Orchestrator.Chat invocation",
				Buckets: prometheus.LinearBuckets(1, 1, 6),
			},
		),
		OrchestratorHedgingSafetyNet: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voiceresearch_orchestrator_hedging_safety_net_total",
				Help: "Total hedging safety-net triggers",
			},
		),
		WorkflowStepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voiceresearch_workflow_step_duration_seconds",
				Help:    "Duration of one Workflow Engine step in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"workflow_id", "step_kind"},
		),
		WorkflowExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceresearch_workflow_exits_total",
				Help: "Total workflow completions by outcome",
			},
			[]string{"workflow_id", "reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.ToolDispatchDuration,
			m.ToolDispatchTotal,
			m.OrchestratorIterations,
			m.OrchestratorHedgingSafetyNet,
			m.WorkflowStepDuration,
			m.WorkflowExits,
		)
	}
	return m
}

// ObserveToolDispatch records one Dispatch call's outcome and latency.
func (m *Metrics) ObserveToolDispatch(tool string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ToolDispatchDuration.WithLabelValues(tool, status).Observe(time.Since(start).Seconds())
	m.ToolDispatchTotal.WithLabelValues(tool, status).Inc()
}

// ObserveOrchestratorIterations records how many tool-call iterations one
// Chat invocation used.
func (m *Metrics) ObserveOrchestratorIterations(count int) {
	if m == nil {
		return
	}
	m.OrchestratorIterations.Observe(float64(count))
}

// ObserveHedgingSafetyNet records one hedging safety-net trigger.
func (m *Metrics) ObserveHedgingSafetyNet() {
	if m == nil {
		return
	}
	m.OrchestratorHedgingSafetyNet.Inc()
}

// ObserveWorkflowStep records one step's latency.
func (m *Metrics) ObserveWorkflowStep(workflowID, stepKind string, start time.Time) {
	if m == nil {
		return
	}
	m.WorkflowStepDuration.WithLabelValues(workflowID, stepKind).Observe(time.Since(start).Seconds())
}

// ObserveWorkflowExit records one workflow's terminal outcome.
func (m *Metrics) ObserveWorkflowExit(workflowID, reason string) {
	if m == nil {
		return
	}
	m.WorkflowExits.WithLabelValues(workflowID, reason).Inc()
}
