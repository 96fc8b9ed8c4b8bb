package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AdaptorConfig configures an Adaptor's retry behavior and logging.
type AdaptorConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func sanitizeAdaptorConfig(cfg AdaptorConfig) AdaptorConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Adaptor is the single operation the core calls against an LLM: one
// generate(messages, options) -> Result regardless of which concrete
// Provider backs the call (spec §4.1).
type Adaptor struct {
	providers       map[string]Provider
	defaultProvider string
	config          AdaptorConfig
}

// NewAdaptor builds an Adaptor over a set of named providers. defaultName
// selects which provider answers a Request that doesn't set an override.
func NewAdaptor(providers map[string]Provider, defaultName string, config AdaptorConfig) *Adaptor {
	return &Adaptor{
		providers:       providers,
		defaultProvider: defaultName,
		config:          sanitizeAdaptorConfig(config),
	}
}

// providerOverrideKey selects a non-default provider for one Generate call.
type providerOverrideKey struct{}

// WithProvider attaches a provider-name override to ctx for one call.
func WithProvider(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, providerOverrideKey{}, name)
}

func providerOverride(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(providerOverrideKey{}).(string)
	return name, ok
}

// Generate dispatches req to the selected provider, retries
// ProviderUnavailable/RateLimited failures with linear backoff (grounded
// on the donor's BaseProvider.Retry), then normalizes the provider's
// think-tagged output before returning.
func (a *Adaptor) Generate(ctx context.Context, req Request) (Result, error) {
	name := a.defaultProvider
	if override, ok := providerOverride(ctx); ok && override != "" {
		name = override
	}
	provider, ok := a.providers[name]
	if !ok {
		return Result{}, &ProviderError{Provider: name, Kind: ErrProviderUnavailable,
			Cause: fmt.Errorf("no provider registered under name %q", name)}
	}

	var result Result
	var lastErr error
	for attempt := 0; attempt < a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			}
		}
		result, lastErr = provider.Generate(ctx, req)
		if lastErr == nil {
			break
		}
		if !IsRetryable(lastErr) {
			return Result{}, lastErr
		}
		a.config.Logger.Warn("llm generate retrying", "provider", name, "attempt", attempt, "error", lastErr)
	}
	if lastErr != nil {
		return Result{}, lastErr
	}

	cleaned, thinkTokens, tag := StripThinkTags(result.Text)
	result.Text = cleaned
	result.ThinkTokens += thinkTokens
	if tag != "" {
		result.ThinkTagDetected = tag
	}
	result.RawChars = len(result.Text)
	return result, nil
}

// SupportsTools reports whether the named provider (or the default, if
// name is empty) can accept tool schemas.
func (a *Adaptor) SupportsTools(name string) bool {
	if name == "" {
		name = a.defaultProvider
	}
	p, ok := a.providers[name]
	return ok && p.SupportsTools()
}
