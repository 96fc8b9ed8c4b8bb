// Package providers implements the concrete LLM backends the Adaptor (C1)
// can be configured with: one local-model backend (Ollama) and several
// managed API backends (Anthropic, OpenAI, AWS Bedrock).
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/pkg/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider implements llm.Provider against the Anthropic Messages
// API, streaming internally and aggregating into one llm.Result.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

var _ llm.Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider builds an Anthropic-backed provider. An empty
// DefaultModel falls back to Claude Sonnet.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), defaultModel: model}, nil
}

func (p *AnthropicProvider) Name() string       { return "anthropic" }
func (p *AnthropicProvider) SupportsTools() bool { return true }

// Generate streams one Messages.New call and folds it into a single
// llm.Result: concatenated text, any tool-use blocks as ToolCallRequests,
// and token counts from the stream's usage events.
func (p *AnthropicProvider) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	messages, system, err := convertMessages(req.Messages)
	if err != nil {
		return llm.Result{}, &llm.ProviderError{Provider: "anthropic", Kind: llm.ErrInvalidResponse, Cause: err}
	}

	model := modelOrDefault(req.Model, p.defaultModel)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(tokensOrDefault(req.MaxTokens, 4096)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return llm.Result{}, &llm.ProviderError{Provider: "anthropic", Kind: llm.ErrInvalidResponse, Cause: err}
		}
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	var text strings.Builder
	var calls []llm.ToolCallRequest
	var inputTokens, outputTokens int
	var curName, curID string
	var curArgs strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			inputTokens = int(ev.Message.Usage.InputTokens)
		case anthropic.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				curName, curID = tu.Name, tu.ID
				curArgs.Reset()
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				text.WriteString(d.Text)
			case anthropic.InputJSONDelta:
				curArgs.WriteString(d.PartialJSON)
			}
		case anthropic.ContentBlockStopEvent:
			if curName != "" {
				calls = append(calls, llm.ToolCallRequest{CallID: curID, Name: curName, Args: []byte(curArgs.String())})
				curName, curID = "", ""
			}
		case anthropic.MessageDeltaEvent:
			if ev.Usage.OutputTokens > 0 {
				outputTokens = int(ev.Usage.OutputTokens)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return llm.Result{}, classifyError("anthropic", err)
	}

	return llm.Result{
		Text:         text.String(),
		Model:        model,
		ToolCalls:    calls,
		PromptTokens: inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

func classifyError(provider string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrRateLimited, Cause: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "5"):
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrProviderUnavailable, Cause: err}
	case strings.Contains(msg, "context") && strings.Contains(msg, "too long"):
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrContextOverflow, Cause: err}
	default:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrInvalidResponse, Cause: err}
	}
}

func modelOrDefault(model, def string) string {
	if model == "" {
		return def
	}
	return model
}

func tokensOrDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// convertMessages splits out the leading system message (Anthropic takes it
// as a separate top-level field) and maps every remaining message to an
// anthropic.MessageParam, rendering tool calls/results in Anthropic's
// tool_use/tool_result block shapes.
func convertMessages(msgs []models.Message) ([]anthropic.MessageParam, string, error) {
	var system string
	out := make([]anthropic.MessageParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}

		switch m.Role {
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if err := json.Unmarshal(tc.Args, &input); err != nil {
					return nil, "", fmt.Errorf("tool call %s: invalid args: %w", tc.ID, err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
		case models.RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolResults))
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})
		}
	}
	return out, system, nil
}

func convertTools(tools []llm.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.ArgsSchema, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: schema["properties"]},
			},
		})
	}
	return out, nil
}
