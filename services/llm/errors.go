package llm

import (
	"errors"
	"fmt"
)

// Typed provider errors. The provider client is the only place that looks
// at raw provider responses; everything downstream switches on these types
// with errors.As.

// AuthError means the provider rejected our credentials (401/403).
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the provider throttled us (429).
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TimeoutError means the call exceeded the configured deadline.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProviderError covers everything else the provider can fail with.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s call failed (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrorClass names the error category for metrics labels.
func ErrorClass(err error) string {
	var authErr *AuthError
	var rateErr *RateLimitError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &timeoutErr):
		return "timeout"
	default:
		return "provider"
	}
}
