package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/pkg/models"
)

func TestConvertMessages_SplitsSystemPrompt(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "be terse"},
		{Role: models.RoleUser, Content: "hi"},
	}
	out, system, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages error: %v", err)
	}
	if system != "be terse" {
		t.Errorf("system = %q, want %q", system, "be terse")
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestConvertMessages_AssistantToolCall(t *testing.T) {
	msgs := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "web_search", Args: json.RawMessage(`{"query":"x"}`)},
			},
		},
	}
	out, _, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestConvertMessages_ToolResult(t *testing.T) {
	msgs := []models.Message{
		{
			Role:        models.RoleTool,
			ToolResults: []models.ToolResult{{ToolCallID: "call-1", Content: "3 hits", IsError: false}},
		},
	}
	out, _, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestConvertMessages_InvalidToolArgs(t *testing.T) {
	msgs := []models.Message{
		{
			Role:      models.RoleAssistant,
			ToolCalls: []models.ToolCall{{ID: "call-1", Name: "web_search", Args: json.RawMessage(`not json`)}},
		},
	}
	if _, _, err := convertMessages(msgs); err == nil {
		t.Fatal("expected an error for malformed tool-call args")
	}
}

func TestConvertTools_ValidSchema(t *testing.T) {
	tools := []llm.ToolSchema{
		{Name: "web_search", Description: "search the web", ArgsSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`)},
	}
	out, err := convertTools(tools)
	if err != nil {
		t.Fatalf("convertTools error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestConvertTools_InvalidSchema(t *testing.T) {
	tools := []llm.ToolSchema{{Name: "broken", ArgsSchema: json.RawMessage(`not json`)}}
	if _, err := convertTools(tools); err == nil {
		t.Fatal("expected an error for malformed schema")
	}
}

func TestClassifyError_RateLimited(t *testing.T) {
	err := classifyError("anthropic", errors.New("received 429 rate limit exceeded"))
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestClassifyError_Unavailable(t *testing.T) {
	err := classifyError("anthropic", errors.New("dial tcp: connection refused"))
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestClassifyError_DefaultInvalidResponse(t *testing.T) {
	err := classifyError("anthropic", errors.New("unexpected field in response body"))
	if !errors.Is(err, llm.ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestAnthropicProvider_NameAndTools(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider error: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools() to be true")
	}
}

func TestNewAnthropicProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected an error for missing API key")
	}
}
