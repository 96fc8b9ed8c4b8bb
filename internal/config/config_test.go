package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", `
llm:
  default_provider: anthropic
  providers:
    - name: anthropic
      credential: sk-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Core.MaxToolIterations != 5 {
		t.Errorf("expected default max_tool_iterations 5, got %d", cfg.Core.MaxToolIterations)
	}
	if cfg.Workflow.SnippetChars != 150 {
		t.Errorf("expected default snippet_chars 150, got %d", cfg.Workflow.SnippetChars)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default logging format json, got %q", cfg.Logging.Format)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "providers.yaml", `
llm:
  providers:
    - name: anthropic
      credential: sk-from-include
`)
	path := writeTempFile(t, dir, "config.yaml", `
$include: providers.yaml
llm:
  default_provider: anthropic
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].Credential != "sk-from-include" {
		t.Fatalf("expected included provider to merge, got %+v", cfg.LLM.Providers)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.yaml", `$include: b.yaml`)
	bPath := writeTempFile(t, dir, "b.yaml", `$include: a.yaml`)
	_, err := Load(bPath)
	if err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestValidateRequiresDefaultProvider(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error with no default_provider")
	}
}

func TestValidateRequiresCredentialedProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.DefaultProvider = "anthropic"
	cfg.LLM.Providers = []ProviderConfig{{Name: "anthropic"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing credential")
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", `
llm:
  default_provider: anthropic
  providers:
    - name: anthropic
      credential: sk-test
core:
  max_tool_iterations: 3
`)
	t.Setenv("VOICERESEARCH_MAX_TOOL_ITERATIONS", "8")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Core.MaxToolIterations != 8 {
		t.Errorf("expected env override 8, got %d", cfg.Core.MaxToolIterations)
	}
}
