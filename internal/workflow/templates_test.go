package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observe"
)

func TestBuiltinDefinitionsAreAllFourSteps(t *testing.T) {
	for _, def := range BuiltinDefinitions() {
		if len(def.Steps) != 4 {
			t.Errorf("%s: expected 4 steps, got %d", def.ID, len(def.Steps))
		}
	}
}

func TestFactCheckRunsDistinctSupportingAndCounterSearchLoops(t *testing.T) {
	def := FactCheck()
	if len(def.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(def.Steps))
	}
	support, ok := def.StepByID("supporting_search")
	if !ok || support.Kind != KindLoop || support.Child.ToolBinding != searchToolName {
		t.Fatalf("supporting_search must be a tool-bound loop step, got %+v", support)
	}
	counter, ok := def.StepByID("counter_search")
	if !ok || counter.Kind != KindLoop || counter.Child.ToolBinding != searchToolName {
		t.Fatalf("counter_search must be a tool-bound loop step, got %+v", counter)
	}
	if support.SourceVar == counter.SourceVar {
		t.Fatalf("supporting and counter loops must read distinct source vars, both got %q", support.SourceVar)
	}

	var dispatched []string
	var mu sync.Mutex
	tool := recordingSearchTool{record: func(args json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, string(args))
	}}
	registry := newTestRegistry(t)
	if err := registry.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	adaptor := newTestAdaptor(
		llm.Result{Text: `{"supporting_queries": ["claim is true evidence"], "counter_queries": ["claim is false evidence"]}`},
		llm.Result{ToolCalls: []llm.ToolCallRequest{{CallID: "1", Name: searchToolName, Args: json.RawMessage(`{"query":"claim is true evidence"}`)}}},
		llm.Result{ToolCalls: []llm.ToolCallRequest{{CallID: "2", Name: searchToolName, Args: json.RawMessage(`{"query":"claim is false evidence"}`)}}},
		llm.Result{Text: "the claim is partly true"},
	)
	eng := New(adaptor, registry, []Definition{def}, Config{LoopDelay: time.Millisecond})

	var events []observe.Event
	final, err := eng.Run(context.Background(), "fact_check", "is it true that X?", collectEvents(&events))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final != "the claim is partly true" {
		t.Fatalf("got %q", final)
	}
	if len(dispatched) != 2 {
		t.Fatalf("expected both the supporting and counter loops to dispatch a real search, got %d dispatches: %v", len(dispatched), dispatched)
	}

	var visitedCounter bool
	for _, e := range events {
		if e.Kind == observe.KindState && e.StateID == "counter_search" && e.Status == observe.StatusVisited {
			visitedCounter = true
		}
	}
	if !visitedCounter {
		t.Fatalf("expected counter_search state to be visited")
	}
}

// recordingSearchTool is a fake web_search tool that records the args it
// was invoked with, used to prove both Fact Check search loops genuinely
// dispatch rather than one loop being a no-op reflection step.
type recordingSearchTool struct {
	record func(args json.RawMessage)
}

func (recordingSearchTool) Name() string           { return searchToolName }
func (recordingSearchTool) Description() string    { return "fake search" }
func (recordingSearchTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t recordingSearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.record(args)
	return "search result", nil
}
