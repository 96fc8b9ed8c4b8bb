// Package llm unifies multiple chat-completion providers behind one
// request/response shape and normalizes tool-call formats across them.
package llm

import (
	"context"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolSchema describes one tool's calling contract to a provider, enough
// to build that provider's native tool-option list.
type ToolSchema struct {
	Name        string
	Description string
	ArgsSchema  []byte // JSON Schema, provider-agnostic
}

// Request is the provider-agnostic shape of one completion call.
type Request struct {
	Messages  []models.Message
	Tools     []ToolSchema // omit to force text-only output
	Model     string       // empty uses the provider's default
	MaxTokens int          // 0 uses the provider's default
	Thinking  bool         // not read by any provider in internal/llm/providers; it does not change reasoning output
}

// ToolCallRequest is one normalized tool-call extracted from a Result.
type ToolCallRequest struct {
	CallID string
	Name   string
	Args   []byte
}

// Result is the provider-agnostic shape returned by Generate. Text may be
// empty if the provider only returned tool calls.
type Result struct {
	Text           string
	Model          string // concrete model the provider resolved and used
	ToolCalls      []ToolCallRequest
	PromptTokens   int
	OutputTokens   int
	RawChars       int // len(Text) after stripping, before truncation
	ThinkTokens    int // estimated chars excised by the think-strip pipeline
	ThinkTagDetected string // name of the recognized tag that was stripped, if any
}

// Provider is one concrete LLM backend. Capability discovery is static:
// SupportsTools is fixed per provider instance, never negotiated per call.
type Provider interface {
	Name() string
	SupportsTools() bool
	Generate(ctx context.Context, req Request) (Result, error)
}
