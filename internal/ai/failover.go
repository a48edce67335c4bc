package ai

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"studyroom/internal/config"
	"studyroom/internal/domain/models"
)

// ProviderTemplate is the provider name reported when the deterministic
// fallback answered.
const ProviderTemplate = "template"

// Attempt records how one provider in the chain fared, for
// after-the-fact debugging. Returned alongside every response, never
// swallowed.
type Attempt struct {
	Provider string `json:"provider"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Result is the failover controller's answer. There is always one:
// the chain terminates in the template fallback, which cannot fail.
type Result struct {
	Text      string
	Truncated bool
	Provider  string
	Model     string
	RequestID string
	Attempts  []Attempt
}

// FailoverController drives the per-request provider state machine:
// each configured adapter in priority order with a bounded retry loop,
// then the template fallback. Transient errors retry with exponential
// backoff plus jitter; permanent errors escalate immediately.
type FailoverController struct {
	adapters []Adapter
	fallback *TemplateFallback
	cfg      *config.AIConfig
	logger   *slog.Logger
	sem      chan struct{}
}

// NewFailoverController creates a controller over adapters in the given
// priority order. The semaphore caps simultaneous provider calls
// process-wide to bound cost and latency.
func NewFailoverController(adapters []Adapter, fallback *TemplateFallback, cfg *config.AIConfig, logger *slog.Logger) *FailoverController {
	return &FailoverController{
		adapters: adapters,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConcurrentCalls),
	}
}

// Generate runs the failover chain for one request. It never returns an
// error: on total provider exhaustion the template fallback answers,
// keyed by intent (detected from the last user message when the caller
// passes ""). Attempt metadata for every provider tried is attached to
// the result.
func (f *FailoverController) Generate(ctx context.Context, req *Request, intent string) *Result {
	result := &Result{RequestID: uuid.NewString()}

	for _, adapter := range f.adapters {
		resp, attempts, err := f.tryProvider(ctx, adapter, req)

		attempt := Attempt{Provider: adapter.Name(), Attempts: attempts}
		if err != nil {
			attempt.Error = err.Error()
		}
		result.Attempts = append(result.Attempts, attempt)

		if err == nil {
			result.Text = resp.Text
			result.Truncated = resp.Truncated
			result.Model = resp.Model
			result.Provider = adapter.Name()

			f.logger.Info("provider answered",
				"request_id", result.RequestID,
				"provider", adapter.Name(),
				"attempts", attempts,
			)
			return result
		}

		f.logger.Warn("provider exhausted, escalating",
			"request_id", result.RequestID,
			"provider", adapter.Name(),
			"attempts", attempts,
			"transient", IsTransient(err),
			"error", err,
		)
	}

	// Terminal state: deterministic fallback, cannot fail.
	if intent == "" {
		intent = f.fallback.DetectIntent(lastUserMessage(req))
	}
	result.Text = f.fallback.Respond(intent)
	result.Provider = ProviderTemplate
	result.Attempts = append(result.Attempts, Attempt{Provider: ProviderTemplate, Attempts: 1})

	f.logger.Warn("all providers exhausted, template fallback answered",
		"request_id", result.RequestID,
		"intent", intent,
	)
	return result
}

// tryProvider runs one provider's bounded retry loop. Returns the
// response, the number of attempts made, and the last error when all
// attempts failed.
func (f *FailoverController) tryProvider(ctx context.Context, adapter Adapter, req *Request) (*Response, int, error) {
	var lastErr error

	for attempt := 1; attempt <= f.cfg.RetryMaxAttempts; attempt++ {
		resp, err := f.callOnce(ctx, adapter, req)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err

		// Permanent errors escalate immediately, no retry
		if !IsTransient(err) {
			return nil, attempt, err
		}

		f.logger.Debug("transient provider error",
			"provider", adapter.Name(),
			"attempt", attempt,
			"error", err,
		)

		if attempt < f.cfg.RetryMaxAttempts {
			if err := sleepWithJitter(ctx, f.cfg.RetryBaseDelay, attempt); err != nil {
				// Caller's context is gone; stop burning attempts
				return nil, attempt, lastErr
			}
		}
	}

	return nil, f.cfg.RetryMaxAttempts, lastErr
}

// callOnce performs a single provider attempt under the concurrency cap
// and the per-call hard timeout. A timed-out call comes back as
// context.DeadlineExceeded, which IsTransient treats as retryable.
func (f *FailoverController) callOnce(ctx context.Context, adapter Adapter, req *Request) (*Response, error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, WrapTransient(ctx.Err())
	}
	defer func() { <-f.sem }()

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	return adapter.Generate(callCtx, req)
}

// sleepWithJitter waits base * 2^(attempt-1) plus full jitter, or until
// the context is done.
func sleepWithJitter(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << (attempt - 1)
	delay += time.Duration(rand.Int64N(int64(delay)))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lastUserMessage(req *Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.RoleUser {
			return req.Messages[i].Text
		}
	}
	return ""
}
