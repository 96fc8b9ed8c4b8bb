package main

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/llm/providers"
)

// buildProviders constructs one llm.Provider per credentialed entry in
// cfg.LLM.Providers (spec §6 "provider credentials": presence enables
// that provider). Unknown provider names are a startup-time config error.
// The default provider's entry uses cfg.LLM.DefaultModel when it names no
// model of its own.
func buildProviders(cfg config.Config) (map[string]llm.Provider, error) {
	out := make(map[string]llm.Provider, len(cfg.LLM.Providers))
	for _, p := range cfg.LLM.Providers {
		if p.Credential == "" {
			continue
		}
		if p.Name == cfg.LLM.DefaultProvider && p.Model == "" {
			p.Model = cfg.LLM.DefaultModel
		}
		provider, err := buildProvider(p)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Name, err)
		}
		out[p.Name] = provider
	}
	return out, nil
}

func buildProvider(p config.ProviderConfig) (llm.Provider, error) {
	switch p.Name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       p.Credential,
			BaseURL:      p.BaseURL,
			DefaultModel: p.Model,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       p.Credential,
			DefaultModel: p.Model,
		})
	case "bedrock":
		// Credential encodes "accessKeyID:secretAccessKey[:sessionToken]",
		// since Bedrock needs a key pair rather than a single token.
		accessKeyID, secretAccessKey, sessionToken, err := splitBedrockCredential(p.Credential)
		if err != nil {
			return nil, err
		}
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:          p.BaseURL,
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			SessionToken:    sessionToken,
			DefaultModel:    p.Model,
		})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      p.BaseURL,
			DefaultModel: p.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider name %q", p.Name)
	}
}

// splitBedrockCredential parses the "accessKeyID:secretAccessKey[:sessionToken]"
// encoding used for bedrock's llm.providers entry.
func splitBedrockCredential(credential string) (accessKeyID, secretAccessKey, sessionToken string, err error) {
	parts := strings.SplitN(credential, ":", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("bedrock credential must be \"accessKeyID:secretAccessKey\" or \"accessKeyID:secretAccessKey:sessionToken\"")
	}
	accessKeyID, secretAccessKey = parts[0], parts[1]
	if len(parts) == 3 {
		sessionToken = parts[2]
	}
	return accessKeyID, secretAccessKey, sessionToken, nil
}
