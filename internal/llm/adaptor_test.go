package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name    string
	tools   bool
	result  Result
	err     error
	calls   int
	failN   int // fail this many times before succeeding
	failErr error
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) SupportsTools() bool   { return f.tools }
func (f *fakeProvider) Generate(ctx context.Context, req Request) (Result, error) {
	f.calls++
	if f.calls <= f.failN {
		return Result{}, f.failErr
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func TestAdaptor_GenerateStripsThinkTags(t *testing.T) {
	p := &fakeProvider{name: "stub", result: Result{Text: "<think>hm</think>4"}}
	a := NewAdaptor(map[string]Provider{"stub": p}, "stub", AdaptorConfig{})

	res, err := a.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Text != "4" {
		t.Errorf("Text = %q, want %q", res.Text, "4")
	}
	if res.ThinkTokens == 0 {
		t.Error("expected ThinkTokens > 0")
	}
}

func TestAdaptor_RetriesRetryableErrors(t *testing.T) {
	p := &fakeProvider{
		name:    "stub",
		result:  Result{Text: "ok"},
		failN:   2,
		failErr: &ProviderError{Provider: "stub", Kind: ErrProviderUnavailable},
	}
	a := NewAdaptor(map[string]Provider{"stub": p}, "stub", AdaptorConfig{MaxRetries: 5, RetryDelay: time.Millisecond})

	res, err := a.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("Text = %q, want ok", res.Text)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestAdaptor_DoesNotRetryNonRetryable(t *testing.T) {
	p := &fakeProvider{
		name:    "stub",
		failN:   1,
		failErr: &ProviderError{Provider: "stub", Kind: ErrInvalidResponse},
	}
	a := NewAdaptor(map[string]Provider{"stub": p}, "stub", AdaptorConfig{MaxRetries: 5, RetryDelay: time.Millisecond})

	_, err := a.Generate(context.Background(), Request{})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", p.calls)
	}
}

func TestAdaptor_ProviderOverride(t *testing.T) {
	primary := &fakeProvider{name: "primary", result: Result{Text: "from primary"}}
	alt := &fakeProvider{name: "alt", result: Result{Text: "from alt"}}
	a := NewAdaptor(map[string]Provider{"primary": primary, "alt": alt}, "primary", AdaptorConfig{})

	ctx := WithProvider(context.Background(), "alt")
	res, err := a.Generate(ctx, Request{})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Text != "from alt" {
		t.Errorf("Text = %q, want from alt", res.Text)
	}
}

func TestAdaptor_UnknownProvider(t *testing.T) {
	a := NewAdaptor(map[string]Provider{}, "missing", AdaptorConfig{})
	_, err := a.Generate(context.Background(), Request{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
