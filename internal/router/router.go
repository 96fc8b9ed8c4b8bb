// Package router implements the Keyword Router (C3): a sub-millisecond,
// fully deterministic classifier deciding whether an utterance should run
// as a workflow or as a simple orchestrator chat.
package router

import "regexp"

// Trigger is one workflow's ordered set of precompiled, case-insensitive
// patterns. Patterns are compiled with regexp.MustCompile by the caller
// building the Router (compile failures belong at startup, not at route
// time).
type Trigger struct {
	WorkflowID string
	Patterns   []*regexp.Regexp
}

// Router scans a fixed, ordered list of Triggers and returns the id of the
// first whose any pattern matches. Definition order is the tie-break
// (spec §4.3: routing is a pure function of the utterance and the
// Router's static definition list, no mutable state).
type Router struct {
	triggers []Trigger
}

// New builds a Router over triggers, preserving the given order.
func New(triggers []Trigger) *Router {
	cp := make([]Trigger, len(triggers))
	copy(cp, triggers)
	return &Router{triggers: cp}
}

// Route classifies utterance, returning the matching workflow id and
// true, or ("", false) when no trigger matches (the "simple" path).
func (r *Router) Route(utterance string) (workflowID string, ok bool) {
	for _, t := range r.triggers {
		for _, p := range t.Patterns {
			if p.MatchString(utterance) {
				return t.WorkflowID, true
			}
		}
	}
	return "", false
}

// CompilePatterns compiles a list of case-insensitive pattern fragments
// into regexps, anchoring none of them (substring match, per spec's
// "first workflow whose any pattern matches"). Panics on an invalid
// pattern: trigger patterns are a startup-time configuration concern, not
// a runtime one.
func CompilePatterns(fragments ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, regexp.MustCompile(`(?i)`+f))
	}
	return out
}
