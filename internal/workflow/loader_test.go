package workflow

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

func TestLoadDefinitionsDirParsesLinearWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "summarize.yaml", `
id: summarize_thread
name: Summarize Thread
description: Summarize a list of messages into one paragraph.
trigger_patterns:
  - "summarize this"
steps:
  - state_id: synth
    kind: synthesize
    narration: "Summarizing"
    prompt: "Summarize: {query}"
    output_key: summary
`)

	defs, err := LoadDefinitionsDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	d := defs[0]
	if d.ID != "summarize_thread" || len(d.Steps) != 1 {
		t.Fatalf("unexpected definition: %+v", d)
	}
	if d.Steps[0].Kind != KindSynthesize {
		t.Fatalf("expected synthesize step, got %q", d.Steps[0].Kind)
	}
}

func TestLoadDefinitionsDirParsesLoopStep(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "loop.yaml", `
id: loop_workflow
name: Loop Workflow
steps:
  - state_id: iterate
    kind: loop
    source_var: items
    item_placeholder: item
    output_list_key: results
    inter_iteration_delay_seconds: 0.01
    next: ""
    child:
      kind: llm
      prompt: "Research {item}"
      output_key: item_result
`)

	defs, err := LoadDefinitionsDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	step := defs[0].Steps[0]
	if step.Kind != KindLoop {
		t.Fatalf("expected loop step, got %q", step.Kind)
	}
	if step.Child == nil || step.Child.Kind != KindLLM {
		t.Fatalf("expected llm child, got %+v", step.Child)
	}
	if step.InterIterationDelay <= 0 {
		t.Fatalf("expected a positive inter-iteration delay, got %v", step.InterIterationDelay)
	}
}

func TestLoadDefinitionsDirRejectsUnknownStepKind(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "bad.yaml", `
id: bad_workflow
steps:
  - state_id: s1
    kind: not_a_real_kind
    prompt: "x"
`)

	if _, err := LoadDefinitionsDir(dir); err == nil {
		t.Fatal("expected an error for an unknown step kind")
	}
}

func TestLoadDefinitionsDirMissingDirIsNotAnError(t *testing.T) {
	defs, err := LoadDefinitionsDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("expected no error for a missing directory, got %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil definitions, got %v", defs)
	}
}

func TestEngineReplaceCatalogSwapsDefinitions(t *testing.T) {
	engine := New(nil, nil, []Definition{{ID: "a"}}, Config{})
	if _, ok := engine.lookup("a"); !ok {
		t.Fatal("expected initial catalog to contain \"a\"")
	}

	engine.ReplaceCatalog([]Definition{{ID: "b"}})

	if _, ok := engine.lookup("a"); ok {
		t.Fatal("expected \"a\" to be gone after ReplaceCatalog")
	}
	if _, ok := engine.lookup("b"); !ok {
		t.Fatal("expected \"b\" to be present after ReplaceCatalog")
	}
}
