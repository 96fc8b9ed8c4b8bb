package observability

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTracerDefaultsToNoop(t *testing.T) {
	tr := NewTracer(nil)
	ctx, span := tr.StartWorkflowStep(context.Background(), "research-compare", "initial_lookup", "llm")
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
}

func TestTracerRecordsSpansWithProvider(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	tr := NewTracer(provider.Tracer("test"))

	ctx, span := tr.StartOrchestratorIteration(context.Background(), 1)
	span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}

	_, span2 := tr.StartToolDispatch(context.Background(), "web_search")
	span2.End()
}
