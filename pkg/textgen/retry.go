package textgen

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy wraps a Generator with bounded retries. Only transient
// failures are retried: retryable backend statuses and transport errors.
// Context cancellation and deadline expiry abort immediately.
type RetryPolicy struct {
	inner      Generator
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// WithRetries decorates gen with exponential backoff: baseDelay, then
// doubled per attempt, up to maxRetries extra attempts.
func WithRetries(gen Generator, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryPolicy{
		inner:      gen,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger.With("component", "textgen_retry"),
	}
}

func (r *RetryPolicy) Generate(ctx context.Context, req Request) (string, error) {
	delay := r.baseDelay
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("generation retry",
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		out, err := r.inner.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryableError(err) {
			return "", err
		}
	}
	return "", lastErr
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	if errors.Is(err, ErrEmptyResponse) {
		return false
	}
	// Transport-level failures (connection reset, DNS) are worth retrying.
	return true
}
