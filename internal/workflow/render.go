package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// placeholder matches the trivial {name} grammar a prompt template uses to
// reference a state-map variable (spec §9 "Dynamic placeholder
// substitution... keep placeholder grammar trivial to avoid reimplementing
// a templating engine").
var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Render substitutes every {name} placeholder in template with the
// stringified value of state[name]. String values are substituted
// verbatim; any other value (list, map, parsed JSON) is compact-JSON
// serialized. A placeholder naming a variable absent from state is a
// template rendering failure (ErrTemplateVariable), matching spec §4.6's
// "Template rendering failure (missing placeholder for a required state
// value): immediate error exit."
func Render(template string, state State) (string, error) {
	var renderErr error
	out := placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := state[name]
		if !ok {
			renderErr = fmt.Errorf("%w: %s", ErrTemplateVariable, name)
			return match
		}
		return stringify(value)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// stringify renders a state value for template substitution: strings pass
// through unchanged, everything else is compact-JSON serialized.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
