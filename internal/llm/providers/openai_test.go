package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/pkg/models"
)

func TestConvertOpenAIMessages_Roles(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "be terse"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "c1", Content: "ok"}}},
	}
	out, err := convertOpenAIMessages(msgs)
	if err != nil {
		t.Fatalf("convertOpenAIMessages error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
}

func TestConvertOpenAIMessages_AssistantToolCall(t *testing.T) {
	msgs := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "web_search", Args: json.RawMessage(`{"query":"x"}`)},
			},
		},
	}
	out, err := convertOpenAIMessages(msgs)
	if err != nil {
		t.Fatalf("convertOpenAIMessages error: %v", err)
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Name != "web_search" {
		t.Errorf("tool call not converted correctly: %+v", out[0].ToolCalls)
	}
}

func TestConvertOpenAITools_ValidSchema(t *testing.T) {
	tools := []llm.ToolSchema{
		{Name: "web_search", Description: "search", ArgsSchema: json.RawMessage(`{"type":"object"}`)},
	}
	out, err := convertOpenAITools(tools)
	if err != nil {
		t.Fatalf("convertOpenAITools error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestConvertOpenAITools_InvalidSchema(t *testing.T) {
	tools := []llm.ToolSchema{{Name: "broken", ArgsSchema: json.RawMessage(`not json`)}}
	if _, err := convertOpenAITools(tools); err == nil {
		t.Fatal("expected an error for malformed schema")
	}
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected an error for missing API key")
	}
}

func TestOpenAIProvider_NameAndTools(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools() to be true")
	}
}
