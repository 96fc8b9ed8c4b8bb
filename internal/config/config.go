// Package config loads the process configuration: which LLM providers are
// wired in, the Orchestrator/Workflow Engine's tunable bounds, and the
// observability toggles, from a YAML file with environment-variable
// overrides layered on top (spec §6 "Environment configuration recognized
// by the core").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the root configuration tree for the voice research assistant
// core.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	LLM      LLMConfig      `yaml:"llm"`
	Core     CoreConfig     `yaml:"core"`
	Tools    ToolsConfig    `yaml:"tools"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default "info").
	Level string `yaml:"level"`
	// Format is "json" or "text" (default "json").
	Format string `yaml:"format"`
}

// ProviderConfig configures one LLM backend. Presence of Credential
// enables the provider (spec §6 "provider credentials").
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Credential string `yaml:"credential"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Model      string `yaml:"model,omitempty"`
}

// LLMConfig selects the default provider/model and lists every backend
// the Adaptor should construct.
type LLMConfig struct {
	// DefaultProvider names which backend handles a session by default.
	DefaultProvider string `yaml:"default_provider"`
	// DefaultModel names which model within that backend.
	DefaultModel string `yaml:"default_model"`
	// MaxRetries bounds the Adaptor's retry loop (default 3).
	MaxRetries int `yaml:"max_retries"`
	// RetryDelaySeconds is the linear backoff step (default 1).
	RetryDelaySeconds float64 `yaml:"retry_delay_seconds"`
	// Providers lists every backend to construct. A provider with an
	// empty Credential is skipped.
	Providers []ProviderConfig `yaml:"providers"`
}

// CoreConfig tunes the Orchestrator's bounded tool-call loop and holds a
// history group budget setting.
type CoreConfig struct {
	// MaxToolIterations overrides N in the Orchestrator loop (default 5).
	MaxToolIterations int `yaml:"max_tool_iterations"`
	// HistoryGroupBudget defaults to 10 and can be set from the
	// environment, but nothing outside this package reads it: each
	// session's history manager keeps its own default of 10 groups.
	HistoryGroupBudget int `yaml:"history_group_budget"`
}

// WorkflowConfig tunes the Workflow Engine's loop pacing and truncation.
type WorkflowConfig struct {
	// LoopDelaySeconds overrides the inter-iteration sleep (default 1.5).
	LoopDelaySeconds float64 `yaml:"loop_delay_seconds"`
	// SnippetChars overrides per-snippet truncation (default 150).
	SnippetChars int `yaml:"snippet_chars"`
	// AggregateChars overrides total truncation (default 2500).
	AggregateChars int `yaml:"aggregate_chars"`
	// DefinitionsPath optionally points at a directory of YAML workflow
	// definitions to load in addition to the three bundled templates.
	DefinitionsPath string `yaml:"definitions_path,omitempty"`
	// WatchForChanges enables the fsnotify-based hot reload of
	// DefinitionsPath (default false; spec §9 "an initialization routine
	// run once" remains the default behavior).
	WatchForChanges bool `yaml:"watch_for_changes"`
}

// ToolsConfig configures the concrete tools registered alongside the
// bundled web_search/web_fetch pair.
type ToolsConfig struct {
	WebSearch WebSearchToolConfig `yaml:"web_search"`
	// MaxConcurrentDispatch bounds DispatchAll's semaphore (default 4).
	MaxConcurrentDispatch int `yaml:"max_concurrent_dispatch"`
}

// WebSearchToolConfig mirrors websearch.Config's fields that are
// meaningfully operator-tunable.
type WebSearchToolConfig struct {
	Backend            string `yaml:"backend"`
	SearXNGURL         string `yaml:"searxng_url,omitempty"`
	BraveAPIKey        string `yaml:"brave_api_key,omitempty"`
	DefaultResultCount int    `yaml:"default_result_count"`
	ExtractContent     bool   `yaml:"extract_content"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds"`
}

// Default returns a Config with every field at its spec-documented
// default, as if loaded from an empty file.
func Default() Config {
	var cfg Config
	sanitize(&cfg)
	return cfg
}

// sanitize fills zero-value fields with their documented defaults,
// mirroring the per-subsystem sanitizeConfig pattern used across the
// rest of this repository.
func sanitize(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.LLM.MaxRetries <= 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RetryDelaySeconds <= 0 {
		cfg.LLM.RetryDelaySeconds = 1
	}
	if cfg.Core.MaxToolIterations <= 0 {
		cfg.Core.MaxToolIterations = 5
	}
	if cfg.Core.HistoryGroupBudget <= 0 {
		cfg.Core.HistoryGroupBudget = 10
	}
	if cfg.Workflow.LoopDelaySeconds <= 0 {
		cfg.Workflow.LoopDelaySeconds = 1.5
	}
	if cfg.Workflow.SnippetChars <= 0 {
		cfg.Workflow.SnippetChars = 150
	}
	if cfg.Workflow.AggregateChars <= 0 {
		cfg.Workflow.AggregateChars = 2500
	}
	if cfg.Tools.MaxConcurrentDispatch <= 0 {
		cfg.Tools.MaxConcurrentDispatch = 4
	}
	if cfg.Tools.WebSearch.DefaultResultCount <= 0 {
		cfg.Tools.WebSearch.DefaultResultCount = 5
	}
	if cfg.Tools.WebSearch.CacheTTLSeconds <= 0 {
		cfg.Tools.WebSearch.CacheTTLSeconds = 300
	}
}

// applyEnvOverrides applies the fixed table from spec §6, applied after the YAML
// file loads. Every entry is optional; an unset or unparseable variable
// leaves the YAML-derived value untouched.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICERESEARCH_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("VOICERESEARCH_DEFAULT_MODEL"); v != "" {
		cfg.LLM.DefaultModel = v
	}
	if v := envInt("VOICERESEARCH_MAX_TOOL_ITERATIONS"); v != 0 {
		cfg.Core.MaxToolIterations = v
	}
	if v := envInt("VOICERESEARCH_HISTORY_GROUP_BUDGET"); v != 0 {
		cfg.Core.HistoryGroupBudget = v
	}
	if v := envFloat("VOICERESEARCH_LOOP_DELAY_SECONDS"); v != 0 {
		cfg.Workflow.LoopDelaySeconds = v
	}
	if v := envInt("VOICERESEARCH_SNIPPET_CHARS"); v != 0 {
		cfg.Workflow.SnippetChars = v
	}
	if v := envInt("VOICERESEARCH_AGGREGATE_CHARS"); v != 0 {
		cfg.Workflow.AggregateChars = v
	}
	for i := range cfg.LLM.Providers {
		key := "VOICERESEARCH_CREDENTIAL_" + strings.ToUpper(cfg.LLM.Providers[i].Name)
		if v := os.Getenv(key); v != "" {
			cfg.LLM.Providers[i].Credential = v
		}
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// Validate reports configuration errors a loaded Config should never
// silently tolerate: no default provider named, or a default provider
// with no matching, credentialed entry in Providers.
func (c Config) Validate() error {
	if c.LLM.DefaultProvider == "" {
		return fmt.Errorf("config: llm.default_provider is required")
	}
	for _, p := range c.LLM.Providers {
		if p.Name == c.LLM.DefaultProvider {
			if p.Credential == "" {
				return fmt.Errorf("config: default provider %q has no credential configured", p.Name)
			}
			return nil
		}
	}
	return fmt.Errorf("config: default provider %q has no matching entry in llm.providers", c.LLM.DefaultProvider)
}
