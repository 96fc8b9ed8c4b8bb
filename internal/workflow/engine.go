package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/observe"
	"github.com/haasonsaas/nexus/internal/tooling"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Config configures an Engine's defaults, all overridable per spec §6's
// environment configuration table.
type Config struct {
	Logger    *slog.Logger
	LoopDelay time.Duration // default 1.5s
	Truncate  TruncateConfig
	Metrics   *observability.Metrics
	Tracer    observability.Tracer
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LoopDelay <= 0 {
		cfg.LoopDelay = 1500 * time.Millisecond
	}
	cfg.Truncate = sanitizeTruncateConfig(cfg.Truncate)
	if cfg.Tracer == (observability.Tracer{}) {
		cfg.Tracer = observability.NewTracer(nil)
	}
	return cfg
}

// Engine interprets Workflow Definitions. One Engine is built once at
// startup over the process-wide tool registry and a static catalog of
// definitions, then shared read-only across concurrent Run calls — each
// call owns its own State map and truncation budget, so no locking is needed for
// Run itself. The catalog is only ever mutated wholesale, by the optional
// hot-reload path (ReplaceCatalog), guarded by defsMu.
type Engine struct {
	adaptor *llm.Adaptor
	tools   *tooling.Registry

	defsMu sync.RWMutex
	defs   map[string]Definition

	config Config
}

// New builds an Engine over adaptor, tools, and the given catalog of
// Workflow Definitions (typically the three bundled templates, see
// templates.go).
func New(adaptor *llm.Adaptor, tools *tooling.Registry, defs []Definition, config Config) *Engine {
	return &Engine{adaptor: adaptor, tools: tools, defs: catalogOf(defs), config: sanitizeConfig(config)}
}

func catalogOf(defs []Definition) map[string]Definition {
	catalog := make(map[string]Definition, len(defs))
	for _, d := range defs {
		catalog[d.ID] = d
	}
	return catalog
}

// ReplaceCatalog swaps in a new set of Workflow Definitions atomically.
// In-flight Run calls keep interpreting the definition they already
// looked up; only calls starting afterward see the new catalog. Used by
// the optional definitions-directory hot reload (spec §4.6).
func (e *Engine) ReplaceCatalog(defs []Definition) {
	catalog := catalogOf(defs)
	e.defsMu.Lock()
	e.defs = catalog
	e.defsMu.Unlock()
}

func (e *Engine) lookup(workflowID string) (Definition, bool) {
	e.defsMu.RLock()
	defer e.defsMu.RUnlock()
	def, ok := e.defs[workflowID]
	return def, ok
}

// CancelledErr is returned by Run when ctx is cancelled mid-execution.
// Not part of the error taxonomy surfaced to the user (spec §7:
// "Cancellation: not an error") — a terminal workflow_exit(cancelled)
// event has already been emitted by the time Run returns this.
type CancelledErr struct{}

func (CancelledErr) Error() string { return "workflow: cancelled" }

// Run interprets workflowID against utterance, emitting Observation
// Protocol events to sink as it goes, and returns the synthesize step's
// final text. sink.Emit is called synchronously from this goroutine
// (spec §5): a slow sink backpressures the interpreter directly.
func (e *Engine) Run(ctx context.Context, workflowID, utterance string, sink observe.Sink) (string, error) {
	if sink == nil {
		sink = observe.Noop
	}
	def, ok := e.lookup(workflowID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	states := make([]observe.StateDescriptor, 0, len(def.Steps))
	for _, s := range def.Steps {
		states = append(states, observe.StateDescriptor{
			StateID:    s.StateID,
			Type:       string(s.Kind),
			HasTool:    s.ToolBinding != "",
			ToolName:   s.ToolBinding,
			Narration:  s.Narration,
			NextStepID: s.Next,
		})
	}
	sink.Emit(observe.Event{Kind: observe.KindWorkflowStart, WorkflowID: def.ID, Name: def.Name, Description: def.Description, States: states})

	state := State{"query": utterance}
	b := newBudget(e.config.Truncate)
	total := len(def.Steps)

	if len(def.Steps) == 0 {
		sink.Emit(observe.Event{Kind: observe.KindExit, Reason: observe.ExitError, Error: "workflow has no steps"})
		e.config.Metrics.ObserveWorkflowExit(def.ID, "error")
		return "", fmt.Errorf("%w: %s has no steps", ErrStepContract, def.ID)
	}

	cursor := def.Steps[0].StateID
	var finalText string
	for stepIndex := 0; ; stepIndex++ {
		if ctx.Err() != nil {
			sink.Emit(observe.Event{Kind: observe.KindExit, Reason: observe.ExitCancelled})
			e.config.Metrics.ObserveWorkflowExit(def.ID, "cancelled")
			return "", CancelledErr{}
		}
		step, ok := def.StepByID(cursor)
		if !ok {
			sink.Emit(observe.Event{Kind: observe.KindExit, Reason: observe.ExitError, Error: fmt.Sprintf("dangling next pointer: %s", cursor)})
			e.config.Metrics.ObserveWorkflowExit(def.ID, "error")
			return "", fmt.Errorf("%w: dangling next pointer %q", ErrStepContract, cursor)
		}

		if step.Narration != "" {
			sink.Emit(observe.Event{Kind: observe.KindNarration, Text: step.Narration})
		}
		sink.Emit(observe.Event{Kind: observe.KindState, StateID: step.StateID, Status: observe.StatusActive, StepIndex: stepIndex, TotalSteps: total, StepName: step.StateID})
		if step.TimeoutSecs > 0 {
			sink.Emit(observe.Event{Kind: observe.KindActivity, Activity: step.Narration, TimeoutSecs: step.TimeoutSecs})
		}

		stepCtx, span := e.config.Tracer.StartWorkflowStep(ctx, def.ID, step.StateID, string(step.Kind))
		stepStart := time.Now()
		output, err := e.runStep(stepCtx, step, state, b, sink)
		e.config.Metrics.ObserveWorkflowStep(def.ID, string(step.Kind), stepStart)
		span.End()
		if err != nil {
			if _, cancelled := err.(CancelledErr); cancelled {
				sink.Emit(observe.Event{Kind: observe.KindExit, Reason: observe.ExitCancelled})
				e.config.Metrics.ObserveWorkflowExit(def.ID, "cancelled")
				return "", err
			}
			sink.Emit(observe.Event{Kind: observe.KindState, StateID: step.StateID, Status: observe.StatusError, StepIndex: stepIndex, TotalSteps: total, Detail: err.Error()})
			sink.Emit(observe.Event{Kind: observe.KindExit, Reason: observe.ExitError, Error: err.Error()})
			e.config.Metrics.ObserveWorkflowExit(def.ID, "error")
			return "", err
		}
		sink.Emit(observe.Event{Kind: observe.KindState, StateID: step.StateID, Status: observe.StatusVisited, StepIndex: stepIndex, TotalSteps: total})

		if step.Kind == KindSynthesize {
			finalText = output
		} else {
			decoded := decodeOutputValue(output)
			if step.OutputKey != "" {
				state[step.OutputKey] = decoded
			}
			if step.SpreadObjectKeys {
				if obj, ok := decoded.(map[string]any); ok {
					for k, v := range obj {
						state[k] = v
					}
				}
			}
		}

		if step.Next == "" {
			break
		}
		cursor = step.Next
	}

	sink.Emit(observe.Event{Kind: observe.KindExit, Reason: observe.ExitComplete})
	e.config.Metrics.ObserveWorkflowExit(def.ID, "complete")
	return finalText, nil
}

// runStep dispatches on step.Kind, producing that step's output string.
func (e *Engine) runStep(ctx context.Context, step Step, state State, b *budget, sink observe.Sink) (string, error) {
	switch step.Kind {
	case KindLLM:
		return e.runLLMStep(ctx, step, state, b, sink, true)
	case KindSynthesize:
		return e.runLLMStep(ctx, step, state, b, sink, false)
	case KindLoop:
		return e.runLoopStep(ctx, step, state, b, sink)
	default:
		return "", fmt.Errorf("%w: unknown step kind %q", ErrStepContract, step.Kind)
	}
}

// runLLMStep renders the prompt, calls the LLM Adaptor with a one-shot
// message (no conversation history, per spec §9's Open Question
// resolution), optionally dispatches the step's bound tool, and returns
// the (possibly truncated) output.
func (e *Engine) runLLMStep(ctx context.Context, step Step, state State, b *budget, sink observe.Sink, truncate bool) (string, error) {
	prompt, err := Render(step.Prompt, state)
	if err != nil {
		return "", err
	}

	req := llm.Request{Messages: []models.Message{{Role: models.RoleUser, Content: prompt}}, Thinking: false}
	if step.ToolBinding != "" {
		if schema, ok := e.tools.Schema(step.ToolBinding); ok {
			req.Tools = []llm.ToolSchema{schema}
		}
	}

	start := time.Now()
	result, err := e.adaptor.Generate(ctx, req)
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return "", CancelledErr{}
	}
	if err != nil {
		return "", err
	}

	output := result.Text
	if step.ToolBinding != "" {
		for _, call := range result.ToolCalls {
			if call.Name != step.ToolBinding {
				continue
			}
			dispatched, dispatchErr := e.tools.Dispatch(ctx, call.Name, json.RawMessage(call.Args))
			if dispatchErr != nil {
				output = fmt.Sprintf("[tool error: %v]", dispatchErr)
			} else {
				output = dispatched
			}
			break
		}
	}

	tokPerSec := 0.0
	if elapsed > 0 {
		tokPerSec = float64(result.OutputTokens) / elapsed.Seconds()
	}
	sink.Emit(observe.Event{
		Kind: observe.KindDebug, Step: step.StateID, Model: result.Model, EvalTokens: result.OutputTokens,
		TokPerSec: tokPerSec, RawChars: result.RawChars, PromptTokens: result.PromptTokens,
		TotalMs: elapsed.Milliseconds(), ThinkTokens: result.ThinkTokens, ThinkDetected: result.ThinkTagDetected,
	})

	if truncate {
		output = b.truncate(output)
	}
	return output, nil
}

// runLoopStep reads the state-map source list, instantiates and runs the
// child step once per item sequentially, appending each output to the
// output-list variable, with a per-iteration delay and per-item error
// recovery (spec §4.6 "Loop step").
func (e *Engine) runLoopStep(ctx context.Context, step Step, state State, b *budget, sink observe.Sink) (string, error) {
	raw, ok := state[step.SourceVar]
	items, listOK := asStringList(raw)
	if !ok || !listOK {
		return "", fmt.Errorf("%w: %s", ErrLoopSourceMissing, step.SourceVar)
	}

	labels := make([]string, len(items))
	copy(labels, items)
	sink.Emit(observe.Event{Kind: observe.KindLoopUpdate, LoopStateID: step.StateID, Children: labels, ActiveIndex: -1})

	outputs := make([]string, 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			return "", CancelledErr{}
		}
		sink.Emit(observe.Event{Kind: observe.KindLoopUpdate, LoopStateID: step.StateID, Children: labels, ActiveIndex: i})

		childState := State{}
		for k, v := range state {
			childState[k] = v
		}
		if step.ItemPlaceholder != "" {
			childState[step.ItemPlaceholder] = item
		}

		child := step.Child
		if child == nil {
			return "", fmt.Errorf("%w: loop step %s has no child template", ErrStepContract, step.StateID)
		}
		output, err := e.runLLMStep(ctx, *child, childState, b, sink, true)
		if err != nil {
			if _, cancelled := err.(CancelledErr); cancelled {
				return "", err
			}
			outputs = append(outputs, fmt.Sprintf("[error: %v]", err))
			continue
		}
		outputs = append(outputs, output)

		if i < len(items)-1 {
			select {
			case <-ctx.Done():
				return "", CancelledErr{}
			case <-time.After(loopDelay(step, e.config)):
			}
		}
	}

	if step.OutputListKey != "" {
		state[step.OutputListKey] = outputs
	}
	joined, _ := json.Marshal(outputs)
	return string(joined), nil
}

func loopDelay(step Step, cfg Config) time.Duration {
	if step.InterIterationDelay > 0 {
		return step.InterIterationDelay
	}
	return cfg.LoopDelay
}

// asStringList coerces a state-map value into a []string. Accepts
// []string directly or []any of strings (the shape a decompose LLM
// step's JSON-parsed output typically takes).
func asStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// decodeOutputValue stores an LLM step's raw text output as a []string if
// it happens to parse as a JSON array of strings (the shape a "decompose"
// step per spec §6 produces for a following Loop step's SourceVar), and
// as the plain string otherwise. Everything in state is still "typically
// strings, lists, or JSON-parsed objects" per spec §3; this just performs
// that parse once, at the point a step's output is written into state,
// rather than asking every Loop step to re-parse its source on each run.
func decodeOutputValue(output string) any {
	var list []string
	if err := json.Unmarshal([]byte(output), &list); err == nil {
		return list
	}
	var generic any
	if err := json.Unmarshal([]byte(output), &generic); err == nil {
		return generic
	}
	return output
}

// NewInstanceID generates a unique workflow instance id (spec §3).
func NewInstanceID() string {
	return uuid.NewString()
}
