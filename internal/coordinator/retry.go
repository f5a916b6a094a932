package coordinator

import (
	"context"
	"errors"
	"time"
)

// RetryConfig mirrors Builder retry knobs
// (agent/builder_execution.go#executeWithRetry/calculateRetryDelay),
// generalized to wrap one provider call instead of one Builder method.
type RetryConfig struct {
	MaxRetries int
	BaseDelay time.Duration
	ExponentialBackoff bool
}

// DefaultRetryConfig matches defaults: three retries, 500ms
// base delay, exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, ExponentialBackoff: true}
}

func (cfg RetryConfig) delay(attempt int) time.Duration {
	if cfg.ExponentialBackoff {
		return cfg.BaseDelay * time.Duration(1<<uint(attempt))
	}
	return cfg.BaseDelay
}

// withRetry runs operation, retrying transient failures (per isRetryable)
// up to cfg.MaxRetries times with backoff between attempts. Non-retryable
// errors and context cancellation return immediately.
func withRetry(ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, operation func(context.Context) error) error {
	if cfg.MaxRetries == 0 {
		return operation(ctx)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(cfg.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// transportError is the error shape callProviderOnce wraps HTTP-shape
// failures in, carrying enough to decide retryability.
type transportError struct {
	StatusCode int
	Err error
}

func (e *transportError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "transport error"
}

func (e *transportError) Unwrap() error { return e.Err }

// isRetryableProviderError retries rate limits and server errors but never
// retries a malformed-response shape failure (guard) or a
// context deadline — matching isRetryable's
// don't-retry-on-non-transient-errors shape.
func isRetryableProviderError(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return te.StatusCode == 429 || te.StatusCode >= 500
	}
	return false
}
