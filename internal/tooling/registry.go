package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observability"
)

// RegistryConfig configures a Registry's logging, concurrency bound, and
// ambient observability.
type RegistryConfig struct {
	Logger *slog.Logger
	// MaxConcurrent bounds how many Dispatch calls DispatchAll runs at
	// once (grounded on the donor's tool_exec.go ExecuteConcurrently).
	MaxConcurrent int
	// Metrics records dispatch latency/outcome, if non-nil.
	Metrics *observability.Metrics
	// Tracer wraps each Dispatch in a span. Zero value is the no-op
	// tracer.
	Tracer observability.Tracer
}

func sanitizeRegistryConfig(cfg RegistryConfig) RegistryConfig {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Tracer == (observability.Tracer{}) {
		cfg.Tracer = observability.NewTracer(nil)
	}
	return cfg
}

// Registry is the process-wide mapping from tool name to executor,
// populated once at startup and read-only thereafter (spec §3 "Tool
// Registration", §5 "process-wide immutable after startup").
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	config  RegistryConfig
}

// NewRegistry builds an empty Registry.
func NewRegistry(config RegistryConfig) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		config:  sanitizeRegistryConfig(config),
	}
}

// Register adds a Tool, compiling its JSON-Schema descriptor up front so
// Dispatch never pays a compile cost. A later Register under the same
// name replaces the earlier one (used by config-driven tool wiring at
// startup; the registry is not meant to be mutated once dispatch begins).
func (r *Registry) Register(tool Tool) error {
	schema, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("tooling: register %s: %w", tool.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = schema
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(name + ".schema.json")
}

// Has reports whether a tool is registered under name, used by the
// Orchestrator to check that the search tool exists before the hedging
// safety net synthesizes a call to it.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// ListSchemas returns the tool schema list used to build an LLM request's
// tool options.
func (r *Registry) ListSchemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, llm.ToolSchema{Name: t.Name(), Description: t.Description(), ArgsSchema: t.Schema()})
	}
	return out
}

// Schema returns one tool's schema by name, used to build a single-tool
// binding for a Workflow LLM step.
func (r *Registry) Schema(name string) (llm.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return llm.ToolSchema{}, false
	}
	return llm.ToolSchema{Name: t.Name(), Description: t.Description(), ArgsSchema: t.Schema()}, true
}

// Dispatch resolves name, validates args against its compiled schema, and
// invokes the executor. Never retries; callers decide (spec §4.2). Every
// call is timed and spanned, win or lose.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (string, error) {
	ctx, span := r.config.Tracer.StartToolDispatch(ctx, name)
	defer span.End()
	start := time.Now()
	var err error
	defer func() { r.config.Metrics.ObserveToolDispatch(name, start, err) }()

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, name)
		return "", err
	}
	if schema != nil {
		var decoded any
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if err = json.Unmarshal(args, &decoded); err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
			return "", err
		}
		if verr := schema.Validate(decoded); verr != nil {
			err = fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, verr)
			return "", err
		}
	}
	var result string
	result, err = tool.Execute(ctx, args)
	if err != nil {
		r.config.Logger.Warn("tool execution failed", "tool", name, "error", err)
		err = &ExecutionError{Tool: name, Cause: err}
		return "", err
	}
	return result, nil
}

// Call pairs one tool-call request with its dispatch outcome, the unit
// DispatchAll fans out over a bounded worker pool.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

// CallOutcome is the result of dispatching one Call: either a result
// string or an error, never both.
type CallOutcome struct {
	ID     string
	Result string
	Err    error
}

// DispatchAll runs calls through a semaphore of MaxConcurrent workers and
// returns outcomes in the same order as calls, regardless of completion
// order (spec §9 "tool execution concurrency bound" supplemented feature).
func (r *Registry) DispatchAll(ctx context.Context, calls []Call) []CallOutcome {
	outcomes := make([]CallOutcome, len(calls))
	sem := make(chan struct{}, r.config.MaxConcurrent)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result, err := r.Dispatch(ctx, call.Name, call.Args)
			outcomes[i] = CallOutcome{ID: call.ID, Result: result, Err: err}
		}(i, call)
	}
	wg.Wait()
	return outcomes
}
