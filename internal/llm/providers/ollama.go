package providers

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OllamaConfig configures the local-model backend.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

func sanitizeOllamaConfig(cfg OllamaConfig) OllamaConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return cfg
}

// NewOllamaProvider returns an OpenAIProvider pointed at a local Ollama
// server: Ollama exposes an OpenAI-compatible /v1/chat/completions endpoint,
// so the same wire-format conversion and streaming loop apply unchanged.
func NewOllamaProvider(cfg OllamaConfig) *OpenAIProvider {
	cfg = sanitizeOllamaConfig(cfg)
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = cfg.BaseURL + "/v1"
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         "ollama",
		defaultModel: cfg.DefaultModel,
	}
}
