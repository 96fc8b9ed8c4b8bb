package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps a trace.Tracer so callers can pass one value through
// Config structs without importing otel/trace directly everywhere.
// NewTracer(nil) falls back to the package-global otel tracer (a no-op
// when no SDK is configured), so tracing is opt-in exactly like Metrics.
// The zero value holds no tracer and its Start methods panic; the Config
// sanitizers that embed a Tracer replace a zero value with NewTracer(nil).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps t. Passing a nil t yields a Tracer backed by the
// global otel.Tracer for the given instrumentation name.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = otel.Tracer("github.com/haasonsaas/nexus")
	}
	return Tracer{tracer: t}
}

// StartWorkflowStep opens a span around one Workflow Engine step.
func (t Tracer) StartWorkflowStep(ctx context.Context, workflowID, stateID, stepKind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.state_id", stateID),
			attribute.String("workflow.step_kind", stepKind),
		),
	)
}

// StartOrchestratorIteration opens a span around one Orchestrator loop
// iteration.
func (t Tracer) StartOrchestratorIteration(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "orchestrator.iteration",
		trace.WithAttributes(attribute.Int("orchestrator.iteration", iteration)),
	)
}

// StartToolDispatch opens a span around one Tool Dispatcher call.
func (t Tracer) StartToolDispatch(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tooling.dispatch",
		trace.WithAttributes(attribute.String("tool.name", toolName)),
	)
}
