package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string
	DefaultModel string
}

// OpenAIProvider implements llm.Provider against the OpenAI chat completions
// API. Ollama reuses this same wire format through a custom base URL, so
// NewOllamaProvider builds one of these under the hood.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
}

var _ llm.Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds an OpenAI-backed provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{client: openai.NewClient(cfg.APIKey), name: "openai", defaultModel: model}, nil
}

func (p *OpenAIProvider) Name() string       { return p.name }
func (p *OpenAIProvider) SupportsTools() bool { return true }

// Generate streams a ChatCompletion call and aggregates the chunks into one
// llm.Result, accumulating streamed tool-call argument fragments per index
// the way the donor's processStream does.
func (p *OpenAIProvider) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	messages, err := convertOpenAIMessages(req.Messages)
	if err != nil {
		return llm.Result{}, &llm.ProviderError{Provider: p.name, Kind: llm.ErrInvalidResponse, Cause: err}
	}

	model := modelOrDefault(req.Model, p.defaultModel)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := convertOpenAITools(req.Tools)
		if err != nil {
			return llm.Result{}, &llm.ProviderError{Provider: p.name, Kind: llm.ErrInvalidResponse, Cause: err}
		}
		chatReq.Tools = tools
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return llm.Result{}, classifyError(p.name, err)
	}
	defer stream.Close()

	var text strings.Builder
	toolCalls := make(map[int]*models.ToolCall)

	for {
		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return llm.Result{}, classifyError(p.name, err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta
		text.WriteString(delta.Content)

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Args = append(toolCalls[index].Args, []byte(tc.Function.Arguments)...)
			}
		}
	}

	result := llm.Result{Text: text.String(), Model: model}
	for _, tc := range toolCalls {
		if tc.ID != "" && tc.Name != "" {
			result.ToolCalls = append(result.ToolCalls, llm.ToolCallRequest{CallID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
	}
	return result, nil
}

func convertOpenAIMessages(messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			out = append(out, oaiMsg)
		case models.RoleTool:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}
	return out, nil
}

func convertOpenAITools(tools []llm.ToolSchema) ([]openai.Tool, error) {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.ArgsSchema, &schema); err != nil {
			return nil, err
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return out, nil
}
