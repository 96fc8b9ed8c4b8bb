package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observe"
	"github.com/haasonsaas/nexus/internal/orchestrator"
	"github.com/haasonsaas/nexus/internal/router"
	"github.com/haasonsaas/nexus/internal/tooling"
	"github.com/haasonsaas/nexus/internal/workflow"
)

type scriptedProvider struct {
	results []llm.Result
	calls   int
}

func (p *scriptedProvider) Name() string       { return "fake" }
func (p *scriptedProvider) SupportsTools() bool { return true }
func (p *scriptedProvider) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	idx := p.calls
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	p.calls++
	return p.results[idx], nil
}

func newTestAdaptor(results ...llm.Result) *llm.Adaptor {
	return llm.NewAdaptor(map[string]llm.Provider{"fake": &scriptedProvider{results: results}}, "fake", llm.AdaptorConfig{})
}

type fakeSearchTool struct{}

func (fakeSearchTool) Name() string            { return "web_search" }
func (fakeSearchTool) Description() string     { return "fake web search" }
func (fakeSearchTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (fakeSearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return "a fake search result", nil
}

func newTestRegistry(t *testing.T) *tooling.Registry {
	t.Helper()
	r := tooling.NewRegistry(tooling.RegistryConfig{})
	if err := r.Register(fakeSearchTool{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func simpleRouter() *router.Router {
	return router.New([]router.Trigger{
		{WorkflowID: "research_compare", Patterns: router.CompilePatterns(`compare`)},
	})
}

func TestDispatchRoutesSimpleQueryToOrchestrator(t *testing.T) {
	adaptor := newTestAdaptor(llm.Result{Text: "The answer is four."})
	engine := workflow.New(adaptor, newTestRegistry(t), nil, workflow.Config{})
	d := New(simpleRouter(), engine, adaptor, newTestRegistry(t), orchestrator.Config{}, nil)

	text, err := d.Dispatch(context.Background(), "what is two plus two", "session-1", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(strings.ToLower(text), "four") {
		t.Fatalf("got %q", text)
	}
}

func TestDispatchRoutesWorkflowQueryToEngine(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: "ranking text"},
		llm.Result{Text: `["alpha", "beta"]`},
		llm.Result{Text: "alpha fact"},
		llm.Result{Text: "beta fact"},
		llm.Result{Text: "final comparison"},
	)
	tools := newTestRegistry(t)
	defs := []workflow.Definition{workflow.ResearchCompare()}
	engine := workflow.New(adaptor, tools, defs, workflow.Config{})
	d := New(simpleRouter(), engine, adaptor, tools, orchestrator.Config{}, nil)

	var kinds []string
	sink := observe.SinkFunc(func(e observe.Event) { kinds = append(kinds, string(e.Kind)) })

	text, err := d.Dispatch(context.Background(), "compare apple and google", "session-1", sink)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if text != "final comparison" {
		t.Fatalf("got %q", text)
	}
	if kinds[0] != "workflow_start" || kinds[len(kinds)-1] != "workflow_exit" {
		t.Fatalf("unexpected event sequence: %v", kinds)
	}
}

func TestCancelOnUnknownSessionIsNoop(t *testing.T) {
	adaptor := newTestAdaptor(llm.Result{Text: "x"})
	tools := newTestRegistry(t)
	engine := workflow.New(adaptor, tools, nil, workflow.Config{})
	d := New(simpleRouter(), engine, adaptor, tools, orchestrator.Config{}, nil)

	d.Cancel("no-such-session") // must not panic
}

func TestDispatchCancelDuringWorkflowPropagatesCancellation(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: "ranking text"},
		llm.Result{Text: `["alpha", "beta", "gamma"]`},
		llm.Result{Text: "alpha fact"},
		llm.Result{Text: "beta fact"},
		llm.Result{Text: "gamma fact"},
		llm.Result{Text: "final comparison"},
	)
	tools := newTestRegistry(t)
	defs := []workflow.Definition{workflow.ResearchCompare()}
	engine := workflow.New(adaptor, tools, defs, workflow.Config{LoopDelay: 200 * time.Millisecond})
	disp := New(simpleRouter(), engine, adaptor, tools, orchestrator.Config{}, nil)

	var once bool
	sink := observe.SinkFunc(func(e observe.Event) {
		if e.Kind == observe.KindLoopUpdate && !once {
			once = true
			go disp.Cancel("session-cancel")
		}
	})

	_, err := disp.Dispatch(context.Background(), "compare apple and google", "session-cancel", sink)
	if !errors.As(err, new(workflow.CancelledErr)) {
		t.Fatalf("expected CancelledErr, got %v", err)
	}
}

func TestDispatchRefusesEmptyAndOverlongUtterances(t *testing.T) {
	adaptor := newTestAdaptor(llm.Result{Text: "should never be reached"})
	tools := newTestRegistry(t)
	engine := workflow.New(adaptor, tools, nil, workflow.Config{})
	d := New(simpleRouter(), engine, adaptor, tools, orchestrator.Config{}, nil)

	for name, utterance := range map[string]string{
		"empty":      "",
		"whitespace": "   \n\t",
		"overlong":   strings.Repeat("a", maxUtteranceBytes+1),
	} {
		text, err := d.Dispatch(context.Background(), utterance, "session-refuse", nil)
		if err != nil {
			t.Fatalf("%s: dispatch returned error: %v", name, err)
		}
		if text != emptyUtteranceText && text != overlongUtteranceText {
			t.Fatalf("%s: got %q, want a refusal string", name, text)
		}
	}

	// Nothing reached the provider or history.
	sess := d.sessionFor("session-refuse")
	if len(sess.hist.Messages()) != 0 {
		t.Fatalf("refused utterances must not touch history, got %d messages", len(sess.hist.Messages()))
	}
}

func TestDispatchMissingProviderFallsBackOnProviderError(t *testing.T) {
	// First-iteration provider failure surfaces as an error from the
	// Orchestrator (spec §4.5 "Failure semantics"); the Entry Dispatcher
	// converts that into the bounded fallback text (spec §7).
	adaptor := llm.NewAdaptor(map[string]llm.Provider{}, "missing", llm.AdaptorConfig{MaxRetries: 1})
	tools := newTestRegistry(t)
	engine := workflow.New(adaptor, tools, nil, workflow.Config{})
	d := New(simpleRouter(), engine, adaptor, tools, orchestrator.Config{}, nil)

	text, err := d.Dispatch(context.Background(), "what's the weather", "session-3", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if text != fallbackText {
		t.Fatalf("got %q, want fallback", text)
	}
}
