package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Message is a single turn handed to a provider adapter.
type Message struct {
	Role string // "user" or "assistant"
	Text string
}

// Request contains the parameters for a provider call. Adapters receive
// the already-composed system prompt; they never assemble prompt parts
// themselves.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Response is a provider's answer. Truncated is set when generation
// stopped because the token budget ran out, which lets the caller offer
// a continuation.
type Response struct {
	Text      string
	Truncated bool
	Model     string
}

// Adapter is the interface every response provider implements. The
// failover controller depends only on this, never on provider-specific
// types. Implementations classify their failures as transient or
// permanent via WrapTransient/WrapPermanent so the controller can
// decide between retrying and escalating.
type Adapter interface {
	// Name returns the provider identifier used in priority ordering
	// and attempt metadata (e.g. "anthropic", "openai").
	Name() string

	// Generate produces a complete response. Blocks until done, the
	// context deadline expires, or the provider fails.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// TransientError marks a failure worth retrying against the same
// provider: timeouts, rate limits, 5xx/overload.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure retrying cannot fix: auth failures,
// malformed requests, exhausted quota. The failover controller
// escalates immediately to the next provider.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// WrapTransient wraps err as retryable.
func WrapTransient(err error) error {
	return &TransientError{Err: err}
}

// WrapPermanent wraps err as non-retryable.
func WrapPermanent(err error) error {
	return &PermanentError{Err: err}
}

// IsTransient reports whether err should be retried against the same
// provider. Unclassified errors and context deadline expiry count as
// transient: a dropped connection looks the same as an overloaded
// provider from here, and one wasted retry is cheaper than skipping a
// healthy provider.
func IsTransient(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	return true
}

// WrapStatusError classifies a provider HTTP status. Shared by the
// adapter implementations so they agree on the taxonomy.
func WrapStatusError(status int, err error) error {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return WrapTransient(fmt.Errorf("provider returned %d: %w", status, err))
	default:
		return WrapPermanent(fmt.Errorf("provider returned %d: %w", status, err))
	}
}
