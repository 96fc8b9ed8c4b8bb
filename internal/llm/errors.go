package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the provider half of the core's error taxonomy
// (spec §7): ProviderUnavailable, RateLimited, InvalidResponse, and
// ContextOverflow. Callers branch on these with errors.Is.
var (
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
	ErrRateLimited         = errors.New("llm: rate limited")
	ErrInvalidResponse     = errors.New("llm: invalid response")
	ErrContextOverflow     = errors.New("llm: context overflow")
)

// ProviderError wraps a sentinel with the provider name and an optional
// underlying cause, so logs can report which backend failed without
// losing errors.Is compatibility with the sentinel.
type ProviderError struct {
	Provider string
	Kind     error // one of the sentinels above
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm: %s: %v: %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("llm: %s: %v", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// IsRetryable reports whether a ProviderError's kind is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}
