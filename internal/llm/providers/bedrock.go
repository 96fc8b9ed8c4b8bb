package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/pkg/models"
)

// BedrockConfig configures the AWS Bedrock provider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// BedrockProvider implements llm.Provider against AWS Bedrock's Converse
// API, giving access to any foundation model Bedrock hosts (Anthropic,
// Titan, Llama, Mistral, Cohere) through one wire format.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

var _ llm.Provider = (*BedrockProvider)(nil)

// NewBedrockProvider loads AWS credentials (explicit, if given, otherwise
// the default provider chain) and builds a Bedrock-backed provider.
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(context.Background(), config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *BedrockProvider) Name() string       { return "bedrock" }
func (p *BedrockProvider) SupportsTools() bool { return true }

// Generate streams a ConverseStream call and folds its events into one
// llm.Result.
func (p *BedrockProvider) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	if p.client == nil {
		return llm.Result{}, &llm.ProviderError{Provider: "bedrock", Kind: llm.ErrProviderUnavailable, Cause: errors.New("client not initialized")}
	}

	model := modelOrDefault(req.Model, p.defaultModel)
	messages, system, err := convertBedrockMessages(req.Messages)
	if err != nil {
		return llm.Result{}, &llm.ProviderError{Provider: "bedrock", Kind: llm.ErrInvalidResponse, Cause: err}
	}

	converseReq := &bedrockruntime.ConverseStreamInput{ModelId: aws.String(model), Messages: messages}
	if system != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if req.MaxTokens > 0 {
		tokens := req.MaxTokens
		if tokens > math.MaxInt32 {
			tokens = math.MaxInt32
		}
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(tokens))}
	}
	if len(req.Tools) > 0 {
		toolConfig, err := convertBedrockTools(req.Tools)
		if err != nil {
			return llm.Result{}, &llm.ProviderError{Provider: "bedrock", Kind: llm.ErrInvalidResponse, Cause: err}
		}
		converseReq.ToolConfig = toolConfig
	}

	stream, err := p.client.ConverseStream(ctx, converseReq)
	if err != nil {
		return llm.Result{}, classifyError("bedrock", err)
	}
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var text strings.Builder
	var calls []llm.ToolCallRequest
	var curID, curName string
	var curArgs strings.Builder
	var inputTokens, outputTokens int

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				curID = aws.ToString(toolUse.Value.ToolUseId)
				curName = aws.ToString(toolUse.Value.Name)
				curArgs.Reset()
			}
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				text.WriteString(delta.Value)
			case *types.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					curArgs.WriteString(*delta.Value.Input)
				}
			}
		case *types.ConverseStreamOutputMemberContentBlockStop:
			if curID != "" {
				calls = append(calls, llm.ToolCallRequest{CallID: curID, Name: curName, Args: []byte(curArgs.String())})
				curID, curName = "", ""
			}
		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				inputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
				outputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
			}
		}
	}
	if err := eventStream.Err(); err != nil {
		return llm.Result{}, classifyError("bedrock", err)
	}

	return llm.Result{
		Text:         text.String(),
		Model:        model,
		ToolCalls:    calls,
		PromptTokens: inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

func convertBedrockMessages(messages []models.Message) ([]types.Message, string, error) {
	var system string
	out := make([]types.Message, 0, len(messages))

	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}

		var content []types.ContentBlock
		if m.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: m.Content})
		}
		for _, tr := range m.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range m.ToolCalls {
			var input any
			if err := json.Unmarshal(tc.Args, &input); err != nil {
				return nil, "", fmt.Errorf("tool call %s: invalid args: %w", tc.ID, err)
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: document.NewLazyDocument(input)},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, system, nil
}

func convertBedrockTools(tools []llm.ToolSchema) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.ArgsSchema, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}
