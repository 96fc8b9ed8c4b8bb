package workflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlStep mirrors Step with yaml tags and a flat, hand-authorable shape;
// LoadDefinitionsDir converts each into a Step (spec §6: "Workflow
// definitions are additionally expressible as YAML files").
type yamlStep struct {
	StateID     string `yaml:"state_id"`
	Kind        string `yaml:"kind"`
	Narration   string `yaml:"narration"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Next        string `yaml:"next"`

	Prompt      string `yaml:"prompt"`
	ToolBinding string `yaml:"tool_binding"`
	OutputKey   string `yaml:"output_key"`

	SourceVar                  string    `yaml:"source_var"`
	ItemPlaceholder            string    `yaml:"item_placeholder"`
	OutputListKey              string    `yaml:"output_list_key"`
	InterIterationDelaySeconds float64   `yaml:"inter_iteration_delay_seconds"`
	Child                      *yamlStep `yaml:"child"`
}

type yamlDefinition struct {
	ID              string     `yaml:"id"`
	Name            string     `yaml:"name"`
	Description     string     `yaml:"description"`
	TriggerPatterns []string   `yaml:"trigger_patterns"`
	Steps           []yamlStep `yaml:"steps"`
}

// LoadDefinitionsDir parses every *.yaml/*.yml file directly under dir
// into a Definition, sorted by filename for deterministic catalog
// ordering. A directory that doesn't exist yields (nil, nil): the
// definitions-directory feature is opt-in (spec §6 definitions_path).
func LoadDefinitionsDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: read definitions dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := loadDefinitionFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadDefinitionFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}

	var raw yamlDefinition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return Definition{}, fmt.Errorf("workflow: decode %s: %w", path, err)
	}
	if raw.ID == "" {
		return Definition{}, fmt.Errorf("workflow: %s: id is required", path)
	}

	def := Definition{
		ID:              raw.ID,
		Name:            raw.Name,
		Description:     raw.Description,
		TriggerPatterns: raw.TriggerPatterns,
		Steps:           make([]Step, 0, len(raw.Steps)),
	}
	for _, s := range raw.Steps {
		step, err := toStep(s)
		if err != nil {
			return Definition{}, fmt.Errorf("workflow: %s: step %q: %w", path, s.StateID, err)
		}
		def.Steps = append(def.Steps, step)
	}
	return def, nil
}

func toStep(s yamlStep) (Step, error) {
	kind := Kind(s.Kind)
	switch kind {
	case KindLLM, KindLoop, KindSynthesize:
	default:
		return Step{}, fmt.Errorf("%w: unknown step kind %q", ErrStepContract, s.Kind)
	}

	step := Step{
		Kind:        kind,
		StateID:     s.StateID,
		Narration:   s.Narration,
		TimeoutSecs: s.TimeoutSecs,
		Next:        s.Next,
		Prompt:      s.Prompt,
		ToolBinding: s.ToolBinding,
		OutputKey:   s.OutputKey,
		SourceVar:   s.SourceVar,
		ItemPlaceholder:     s.ItemPlaceholder,
		OutputListKey:       s.OutputListKey,
		InterIterationDelay: time.Duration(s.InterIterationDelaySeconds * float64(time.Second)),
	}
	if kind == KindLoop {
		if s.Child == nil {
			return Step{}, fmt.Errorf("%w: loop step has no child", ErrStepContract)
		}
		child, err := toStep(*s.Child)
		if err != nil {
			return Step{}, err
		}
		if child.Kind != KindLLM {
			return Step{}, fmt.Errorf("%w: loop child must be an llm step", ErrStepContract)
		}
		step.Child = &child
	}
	return step, nil
}
