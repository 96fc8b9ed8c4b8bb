package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/observe"
	"github.com/haasonsaas/nexus/internal/tooling"
)

// scriptedProvider returns one canned llm.Result per Generate call, in
// order, looping back to the last entry if exhausted.
type scriptedProvider struct {
	mu      sync.Mutex
	results []llm.Result
	calls   int
}

func (p *scriptedProvider) Name() string        { return "fake" }
func (p *scriptedProvider) SupportsTools() bool  { return true }
func (p *scriptedProvider) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	p.calls++
	return p.results[idx], nil
}

func newTestAdaptor(results ...llm.Result) *llm.Adaptor {
	provider := &scriptedProvider{results: results}
	return llm.NewAdaptor(map[string]llm.Provider{"fake": provider}, "fake", llm.AdaptorConfig{})
}

type fakeSearchTool struct{}

func (fakeSearchTool) Name() string           { return "web_search" }
func (fakeSearchTool) Description() string    { return "fake search" }
func (fakeSearchTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (fakeSearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return "search result", nil
}

func newTestRegistry(t *testing.T) *tooling.Registry {
	t.Helper()
	r := tooling.NewRegistry(tooling.RegistryConfig{})
	if err := r.Register(fakeSearchTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	return r
}

func collectEvents(sink *[]observe.Event) observe.Sink {
	return observe.SinkFunc(func(e observe.Event) { *sink = append(*sink, e) })
}

func TestEngineRunLinearWorkflow(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: "step one output"},
		llm.Result{Text: "final answer"},
	)
	def := Definition{
		ID:   "simple",
		Name: "Simple",
		Steps: []Step{
			{Kind: KindLLM, StateID: "a", Prompt: "q: {query}", OutputKey: "a_out", Next: "b"},
			{Kind: KindSynthesize, StateID: "b", Prompt: "a said: {a_out}"},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{})

	var events []observe.Event
	final, err := eng.Run(context.Background(), "simple", "what is 2+2", collectEvents(&events))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final != "final answer" {
		t.Fatalf("got %q", final)
	}
	if events[0].Kind != observe.KindWorkflowStart {
		t.Fatalf("expected first event to be workflow_start, got %v", events[0].Kind)
	}
	if events[len(events)-1].Kind != observe.KindExit || events[len(events)-1].Reason != observe.ExitComplete {
		t.Fatalf("expected last event to be workflow_exit(complete), got %+v", events[len(events)-1])
	}
}

func TestEngineUnknownWorkflow(t *testing.T) {
	eng := New(newTestAdaptor(), newTestRegistry(t), nil, Config{})
	_, err := eng.Run(context.Background(), "nope", "hi", observe.Noop)
	if err == nil {
		t.Fatalf("expected error for unknown workflow")
	}
}

func TestEngineRunRecordsStepAndExitMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	adaptor := newTestAdaptor(
		llm.Result{Text: "step one output"},
		llm.Result{Text: "final answer"},
	)
	def := Definition{
		ID:   "simple",
		Name: "Simple",
		Steps: []Step{
			{Kind: KindLLM, StateID: "a", Prompt: "q: {query}", OutputKey: "a_out", Next: "b"},
			{Kind: KindSynthesize, StateID: "b", Prompt: "a said: {a_out}"},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{Metrics: metrics})

	if _, err := eng.Run(context.Background(), "simple", "what is 2+2", observe.Noop); err != nil {
		t.Fatalf("run: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seenStep, seenExit := false, false
	for _, f := range families {
		switch f.GetName() {
		case "voiceresearch_workflow_step_duration_seconds":
			seenStep = true
		case "voiceresearch_workflow_exits_total":
			seenExit = true
		}
	}
	if !seenStep || !seenExit {
		t.Fatalf("expected step and exit metrics, got step=%v exit=%v", seenStep, seenExit)
	}
}

func TestEngineLoopWithEmptySourceCompletesImmediately(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: `[]`},
		llm.Result{Text: "final answer"},
	)
	def := Definition{
		ID:   "looping",
		Name: "Looping",
		Steps: []Step{
			{Kind: KindLLM, StateID: "decompose", Prompt: "q: {query}", OutputKey: "items", Next: "loop"},
			{
				Kind: KindLoop, StateID: "loop", SourceVar: "items", ItemPlaceholder: "item",
				OutputListKey: "results", Next: "synth",
				Child: &Step{Kind: KindLLM, StateID: "child", Prompt: "item: {item}"},
			},
			{Kind: KindSynthesize, StateID: "synth", Prompt: "done"},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{LoopDelay: time.Millisecond})

	var events []observe.Event
	final, err := eng.Run(context.Background(), "looping", "q", collectEvents(&events))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final != "final answer" {
		t.Fatalf("got %q", final)
	}
	var sawLoopUpdate bool
	for _, e := range events {
		if e.Kind == observe.KindLoopUpdate && e.ActiveIndex == -1 {
			sawLoopUpdate = true
			if len(e.Children) != 0 {
				t.Fatalf("expected empty children for empty source list, got %+v", e.Children)
			}
		}
	}
	if !sawLoopUpdate {
		t.Fatalf("expected at least one workflow_loop_update event")
	}
}

func TestEngineLoopSourceMissing(t *testing.T) {
	adaptor := newTestAdaptor(llm.Result{Text: "final"})
	def := Definition{
		ID:   "looping",
		Name: "Looping",
		Steps: []Step{
			{
				Kind: KindLoop, StateID: "loop", SourceVar: "nonexistent", ItemPlaceholder: "item",
				OutputListKey: "results",
				Child:         &Step{Kind: KindLLM, StateID: "child", Prompt: "item: {item}"},
			},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{})
	_, err := eng.Run(context.Background(), "looping", "q", observe.Noop)
	if err == nil {
		t.Fatalf("expected ErrLoopSourceMissing")
	}
}

func TestEngineLoopIteratesOverProvidedList(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: `["alpha", "beta"]`}, // decompose
		llm.Result{Text: "child output 1"},
		llm.Result{Text: "child output 2"},
		llm.Result{Text: "final answer"},
	)
	def := Definition{
		ID:   "looping",
		Name: "Looping",
		Steps: []Step{
			{Kind: KindLLM, StateID: "decompose", Prompt: "q: {query}", OutputKey: "items", Next: "loop"},
			{
				Kind: KindLoop, StateID: "loop", SourceVar: "items", ItemPlaceholder: "item",
				OutputListKey: "results", Next: "synth",
				Child: &Step{Kind: KindLLM, StateID: "child", Prompt: "item: {item}"},
			},
			{Kind: KindSynthesize, StateID: "synth", Prompt: "results: {results}"},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{LoopDelay: time.Millisecond})

	var events []observe.Event
	final, err := eng.Run(context.Background(), "looping", "q", collectEvents(&events))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final != "final answer" {
		t.Fatalf("got %q", final)
	}

	var activeIndices []int
	for _, e := range events {
		if e.Kind == observe.KindLoopUpdate && e.ActiveIndex >= 0 {
			activeIndices = append(activeIndices, e.ActiveIndex)
		}
	}
	if len(activeIndices) != 2 || activeIndices[0] != 0 || activeIndices[1] != 1 {
		t.Fatalf("expected active indices [0 1], got %v", activeIndices)
	}
}

func TestEngineCancellationMidLoop(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: `["a", "b", "c"]`},
		llm.Result{Text: "out 1"},
		llm.Result{Text: "out 2"},
		llm.Result{Text: "out 3"},
	)
	def := Definition{
		ID:   "looping",
		Name: "Looping",
		Steps: []Step{
			{Kind: KindLLM, StateID: "decompose", Prompt: "q: {query}", OutputKey: "items", Next: "loop"},
			{
				Kind: KindLoop, StateID: "loop", SourceVar: "items", ItemPlaceholder: "item",
				OutputListKey: "results", Next: "synth",
				Child: &Step{Kind: KindLLM, StateID: "child", Prompt: "item: {item}"},
			},
			{Kind: KindSynthesize, StateID: "synth", Prompt: "results: {results}"},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{LoopDelay: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	var events []observe.Event
	var mu sync.Mutex
	sink := observe.SinkFunc(func(e observe.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		if e.Kind == observe.KindLoopUpdate && e.ActiveIndex == 1 {
			cancel()
		}
	})

	_, err := eng.Run(ctx, "looping", "q", sink)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if _, ok := err.(CancelledErr); !ok {
		t.Fatalf("expected CancelledErr, got %T: %v", err, err)
	}

	last := events[len(events)-1]
	if last.Kind != observe.KindExit || last.Reason != observe.ExitCancelled {
		t.Fatalf("expected last event to be workflow_exit(cancelled), got %+v", last)
	}
	for _, e := range events {
		if e.Kind == observe.KindState && e.StateID == "synth" {
			t.Fatalf("synthesize step should never have run after cancellation")
		}
	}
}

func TestEngineSpreadObjectKeysSeedsTwoLoopSources(t *testing.T) {
	adaptor := newTestAdaptor(
		llm.Result{Text: `{"supporting_queries": ["sup1"], "counter_queries": ["con1", "con2"]}`},
		llm.Result{Text: "supporting child output"},
		llm.Result{Text: "counter child output 1"},
		llm.Result{Text: "counter child output 2"},
		llm.Result{Text: "final verdict"},
	)
	def := Definition{
		ID:   "spread",
		Name: "Spread",
		Steps: []Step{
			{
				Kind: KindLLM, StateID: "extract", Prompt: "q: {query}",
				SpreadObjectKeys: true, Next: "support_loop",
			},
			{
				Kind: KindLoop, StateID: "support_loop", SourceVar: "supporting_queries",
				ItemPlaceholder: "item", OutputListKey: "supporting_results", Next: "counter_loop",
				Child: &Step{Kind: KindLLM, StateID: "support_child", Prompt: "item: {item}"},
			},
			{
				Kind: KindLoop, StateID: "counter_loop", SourceVar: "counter_queries",
				ItemPlaceholder: "item", OutputListKey: "counter_results", Next: "synth",
				Child: &Step{Kind: KindLLM, StateID: "counter_child", Prompt: "item: {item}"},
			},
			{Kind: KindSynthesize, StateID: "synth", Prompt: "sup: {supporting_results}, con: {counter_results}"},
		},
	}
	eng := New(adaptor, newTestRegistry(t), []Definition{def}, Config{LoopDelay: time.Millisecond})

	final, err := eng.Run(context.Background(), "spread", "q", observe.Noop)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final != "final verdict" {
		t.Fatalf("got %q", final)
	}
}
