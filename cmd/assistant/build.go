package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus/internal/assistant"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/orchestrator"
	"github.com/haasonsaas/nexus/internal/router"
	"github.com/haasonsaas/nexus/internal/tooling"
	"github.com/haasonsaas/nexus/internal/tools/websearch"
	"github.com/haasonsaas/nexus/internal/workflow"
)

// secondsToDuration converts a fractional-seconds config value (spec §6
// "loop delay seconds") to a time.Duration, leaving 0 alone so the
// caller's own sanitizer applies its documented default.
func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// buildDispatcher wires the full core graph described in spec §2's data
// flow: providers behind the LLM Adaptor (C1), the Tool Dispatcher (C2)
// registry, the Keyword Router (C3), the Workflow Engine (C6) over the
// three bundled templates, and the Entry Dispatcher (C8) tying it all
// together. Returns the Dispatcher plus the process-wide Metrics so the
// caller can expose them.
func buildDispatcher(cfg config.Config, logger *slog.Logger) (*assistant.Dispatcher, *observability.Metrics, error) {
	providerSet, err := buildProviders(cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(providerSet) == 0 {
		return nil, nil, fmt.Errorf("no LLM providers are configured with a credential")
	}

	adaptor := llm.NewAdaptor(providerSet, cfg.LLM.DefaultProvider, llm.AdaptorConfig{
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: secondsToDuration(cfg.LLM.RetryDelaySeconds),
		Logger:     logger,
	})

	metrics := observability.NewMetrics(nil)
	tracer := observability.NewTracer(nil)

	tools := tooling.NewRegistry(tooling.RegistryConfig{
		Logger:        logger,
		MaxConcurrent: cfg.Tools.MaxConcurrentDispatch,
		Metrics:       metrics,
		Tracer:        tracer,
	})
	searchTool := websearch.NewWebSearchTool(&websearch.Config{
		SearXNGURL:         cfg.Tools.WebSearch.SearXNGURL,
		BraveAPIKey:        cfg.Tools.WebSearch.BraveAPIKey,
		DefaultBackend:     websearch.SearchBackend(cfg.Tools.WebSearch.Backend),
		ExtractContent:     cfg.Tools.WebSearch.ExtractContent,
		DefaultResultCount: cfg.Tools.WebSearch.DefaultResultCount,
		CacheTTL:           cfg.Tools.WebSearch.CacheTTLSeconds,
	})
	if err := tools.Register(searchTool); err != nil {
		return nil, nil, fmt.Errorf("registering web_search tool: %w", err)
	}
	fetchTool := websearch.NewWebFetchTool(&websearch.FetchConfig{
		MaxChars: cfg.Workflow.AggregateChars,
	})
	if err := tools.Register(fetchTool); err != nil {
		return nil, nil, fmt.Errorf("registering web_fetch tool: %w", err)
	}

	builtin := workflow.BuiltinDefinitions()
	var custom []workflow.Definition
	if cfg.Workflow.DefinitionsPath != "" {
		custom, err = workflow.LoadDefinitionsDir(cfg.Workflow.DefinitionsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading workflow definitions: %w", err)
		}
	}
	defs := make([]workflow.Definition, 0, len(builtin)+len(custom))
	defs = append(defs, builtin...)
	defs = append(defs, custom...)

	triggers := make([]router.Trigger, 0, len(defs))
	for _, d := range defs {
		triggers = append(triggers, router.Trigger{
			WorkflowID: d.ID,
			Patterns:   router.CompilePatterns(d.TriggerPatterns...),
		})
	}
	r := router.New(triggers)

	engine := workflow.New(adaptor, tools, defs, workflow.Config{
		Logger:    logger,
		LoopDelay: secondsToDuration(cfg.Workflow.LoopDelaySeconds),
		Truncate: workflow.TruncateConfig{
			SnippetChars:   cfg.Workflow.SnippetChars,
			AggregateChars: cfg.Workflow.AggregateChars,
		},
		Metrics: metrics,
		Tracer:  tracer,
	})

	if cfg.Workflow.DefinitionsPath != "" && cfg.Workflow.WatchForChanges {
		reloader, err := workflow.NewReloader(cfg.Workflow.DefinitionsPath, builtin, engine, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting workflow definitions watcher: %w", err)
		}
		// Runs for the life of the process; ask/serve never tear this
		// graph down before exiting.
		reloader.Start(make(chan struct{}))
	}

	orchCfg := orchestrator.Config{
		Logger:        logger,
		MaxIterations: cfg.Core.MaxToolIterations,
		Metrics:       metrics,
		Tracer:        tracer,
	}

	return assistant.New(r, engine, adaptor, tools, orchCfg, logger), metrics, nil
}
