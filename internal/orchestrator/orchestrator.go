// Package orchestrator implements the Orchestrator (C5): the "simple"
// path's multi-iteration tool-call loop, with hedging detection, a
// safety-net search, and a final-iteration rule that forces text output
// to bound the loop.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus/internal/history"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/tooling"
	"github.com/haasonsaas/nexus/pkg/models"
)

// searchToolName names the tool the hedging safety net synthesizes a
// call to, when available. Matches the one concrete search tool wired in
// internal/tools/websearch.
const searchToolName = "web_search"

// Config configures an Orchestrator's bounds.
type Config struct {
	Logger *slog.Logger
	// MaxIterations bounds the tool-call loop (default 5, spec §4.5, §6).
	MaxIterations int
	// Cooldown advisory-throttles the hedging safety net across calls.
	// Nil disables throttling.
	Cooldown *HedgingCooldown
	Metrics  *observability.Metrics
	Tracer   observability.Tracer
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.Tracer == (observability.Tracer{}) {
		cfg.Tracer = observability.NewTracer(nil)
	}
	return cfg
}

// Callbacks are the Orchestrator's best-effort, fire-and-forget status
// hooks (spec §4.5 "Callback contract").
type Callbacks struct {
	// OnStatus reports phase transitions ("thinking", "searching",
	// "tool:<name>"). May be nil.
	OnStatus func(phase string)
	// OnToolCall fires before dispatch. May be nil.
	OnToolCall func(name string, args json.RawMessage)
}

func (c Callbacks) status(phase string) {
	if c.OnStatus == nil {
		return
	}
	defer func() { recover() }()
	c.OnStatus(phase)
}

func (c Callbacks) toolCall(name string, args json.RawMessage) {
	if c.OnToolCall == nil {
		return
	}
	defer func() { recover() }()
	c.OnToolCall(name, args)
}

// Orchestrator drives one user utterance against an LLM with bounded
// tool iterations (spec §4.5).
type Orchestrator struct {
	adaptor *llm.Adaptor
	tools   *tooling.Registry
	hist    *history.Manager
	config  Config
}

// New builds an Orchestrator over the given Adaptor, tool Registry, and
// History Manager. The History Manager is shared with the caller (one
// session's history, per spec §5).
func New(adaptor *llm.Adaptor, tools *tooling.Registry, hist *history.Manager, config Config) *Orchestrator {
	return &Orchestrator{adaptor: adaptor, tools: tools, hist: hist, config: sanitizeConfig(config)}
}

// Result carries the Orchestrator's outcome. Degraded is set when any
// Generate failure occurs after the first iteration (Text is then the
// tentative final text, which is empty on that path because an iteration
// that returns text ends the loop), or when the hedging safety net's
// regeneration fails and the hedged text is returned (spec §4.5 "Failure
// semantics").
type Result struct {
	Text     string
	Degraded bool
}

// Chat runs the bounded tool-call loop for one utterance and returns the
// final text (spec §4.5 "Algorithm").
func (o *Orchestrator) Chat(ctx context.Context, utterance string, cb Callbacks) (Result, error) {
	o.hist.Append(models.Message{Role: models.RoleUser, Content: utterance})

	searchPerformed := false
	var tentative string
	var degraded bool
	iterationsUsed := 0

	for i := 1; i <= o.config.MaxIterations; i++ {
		iterationsUsed = i
		iterCtx, span := o.config.Tracer.StartOrchestratorIteration(ctx, i)
		cb.status("thinking")
		messages := o.hist.ToMessages(history.FlavorSeparateToolMessages)
		req := llm.Request{Messages: messages}
		// Tools are omitted on the final iteration to force text output.
		// With MaxIterations==1 the only call is also the last, so the
		// rule collapses to "tools suppressed."
		if i < o.config.MaxIterations {
			req.Tools = o.tools.ListSchemas()
		}

		result, err := o.adaptor.Generate(iterCtx, req)
		if err != nil {
			span.End()
			if i == 1 {
				return Result{}, err
			}
			return Result{Text: tentative, Degraded: true}, nil
		}

		if len(result.ToolCalls) > 0 {
			o.runToolCalls(iterCtx, result.ToolCalls, cb)
			if containsSearchCall(result.ToolCalls) {
				searchPerformed = true
			}
			span.End()
			continue
		}

		if call, ok := llm.ParseTextToolCall(result.Text, o.knownToolNames()); ok && i < o.config.MaxIterations {
			o.runToolCalls(iterCtx, []llm.ToolCallRequest{call}, cb)
			if call.Name == searchToolName {
				searchPerformed = true
			}
			span.End()
			continue
		}

		tentative = result.Text
		span.End()
		break
	}
	o.config.Metrics.ObserveOrchestratorIterations(iterationsUsed)

	final := tentative
	if IsHedging(final) && !searchPerformed && o.tools.Has(searchToolName) && o.cooldownAllows() {
		o.config.Metrics.ObserveHedgingSafetyNet()
		final, degraded = o.runHedgingSafetyNet(ctx, utterance, final, cb)
	}

	o.hist.Append(models.Message{Role: models.RoleAssistant, Content: final})
	o.hist.Trim(0)

	return Result{Text: final, Degraded: degraded}, nil
}

// runToolCalls notifies OnToolCall for every requested call up front,
// fans them out through the tool Registry's semaphore-bounded
// DispatchAll (so a multi-call iteration runs concurrently rather than
// one call at a time), and appends the assistant-with-tool-calls
// message plus one tool_result message to history, keeping the pair
// adjacent and outcome order matching call order regardless of which
// call actually finishes first.
func (o *Orchestrator) runToolCalls(ctx context.Context, calls []llm.ToolCallRequest, cb Callbacks) {
	toolCalls := make([]models.ToolCall, len(calls))
	batch := make([]tooling.Call, len(calls))
	for i, c := range calls {
		toolCalls[i] = models.ToolCall{ID: c.CallID, Name: c.Name, Args: c.Args}
		batch[i] = tooling.Call{ID: c.CallID, Name: c.Name, Args: c.Args}
		cb.status("tool:" + c.Name)
		cb.toolCall(c.Name, c.Args)
	}
	o.hist.Append(models.Message{Role: models.RoleAssistant, ToolCalls: toolCalls})

	outcomes := o.tools.DispatchAll(ctx, batch)
	results := make([]models.ToolResult, len(outcomes))
	for i, out := range outcomes {
		if out.Err != nil {
			results[i] = models.ToolResult{ToolCallID: out.ID, Content: out.Err.Error(), IsError: true}
			continue
		}
		results[i] = models.ToolResult{ToolCallID: out.ID, Content: out.Result}
	}
	o.hist.Append(models.Message{Role: models.RoleTool, ToolResults: results})
}

// runHedgingSafetyNet synthesizes a single search-tool call for utterance,
// dispatches it, appends the result, and regenerates one final assistant
// turn (spec §4.5 step 3). It is single-shot: called at most once per
// Chat invocation.
func (o *Orchestrator) runHedgingSafetyNet(ctx context.Context, utterance, fallback string, cb Callbacks) (string, bool) {
	cb.status("searching")
	args, _ := json.Marshal(map[string]string{"query": utterance})
	call := llm.ToolCallRequest{CallID: "hedging-safety-net", Name: searchToolName, Args: args}
	o.runToolCalls(ctx, []llm.ToolCallRequest{call}, cb)

	req := llm.Request{Messages: o.hist.ToMessages(history.FlavorSeparateToolMessages)}
	result, err := o.adaptor.Generate(ctx, req)
	if err != nil {
		return fallback, true
	}
	return result.Text, false
}

func (o *Orchestrator) cooldownAllows() bool {
	if o.config.Cooldown == nil {
		return true
	}
	return o.config.Cooldown.Allow(time.Now())
}

func (o *Orchestrator) knownToolNames() map[string]bool {
	out := make(map[string]bool)
	for _, s := range o.tools.ListSchemas() {
		out[s.Name] = true
	}
	return out
}

func containsSearchCall(calls []llm.ToolCallRequest) bool {
	for _, c := range calls {
		if c.Name == searchToolName {
			return true
		}
	}
	return false
}
