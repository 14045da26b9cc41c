package genai

import (
	"context"

	fidelityerrors "fidelity/internal/errors"
	"fidelity/internal/logging"
)

// RetryClient wraps a Client with retry logic and a circuit breaker. Model
// services rate-limit and shed load under pressure; the wrapper absorbs
// transient failures so callers only see errors worth surfacing.
type RetryClient struct {
	inner   Client
	retry   fidelityerrors.RetryConfig
	breaker *fidelityerrors.CircuitBreaker
	logger  logging.Logger
}

// NewRetryClient wraps the given client. The name labels the circuit breaker
// so log lines identify which model endpoint tripped it.
func NewRetryClient(name string, inner Client, retry fidelityerrors.RetryConfig) *RetryClient {
	return &RetryClient{
		inner:   inner,
		retry:   retry,
		breaker: fidelityerrors.NewCircuitBreaker(name, fidelityerrors.DefaultCircuitBreakerConfig()),
		logger:  logging.NewComponentLogger("genai-retry"),
	}
}

// GenerateContent calls the wrapped client, retrying transient failures with
// backoff. The circuit breaker sits inside the retry loop: when it opens, the
// rejection is permanent and the loop stops immediately.
func (c *RetryClient) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	return fidelityerrors.RetryWithResultAndLog(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		return fidelityerrors.ExecuteFunc(c.breaker, ctx, func(ctx context.Context) (*Response, error) {
			return c.inner.GenerateContent(ctx, req)
		})
	}, c.logger)
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *RetryClient) BreakerState() fidelityerrors.CircuitState {
	return c.breaker.State()
}
