package resumes

import (
	"context"
	"errors"
	"time"

	"resumes-api/internal/shared/metrics"
	"resumes-api/internal/shared/telemetry"
)

// MaxStoreRetries caps how often an unavailable store is retried per call.
const MaxStoreRetries = 2

// RetryPolicy bounds retries of store calls that failed with ErrStoreUnavailable.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries twice, backing off 50ms then 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: MaxStoreRetries, BaseDelay: 50 * time.Millisecond}
}

func (p RetryPolicy) retries() int {
	switch {
	case p.MaxRetries < 0:
		return 0
	case p.MaxRetries > MaxStoreRetries:
		return MaxStoreRetries
	default:
		return p.MaxRetries
	}
}

// withRetry runs fn, retrying with exponential backoff while it fails with
// ErrStoreUnavailable. Every other error is returned immediately.
func withRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	retries := p.retries()
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil || !errors.Is(err, ErrStoreUnavailable) || attempt >= retries {
			return val, err
		}

		delay := p.BaseDelay << attempt
		telemetry.Warn("store.retry", map[string]any{
			"operation": op,
			"attempt":   attempt + 1,
			"delay_ms":  delay.Milliseconds(),
			"error":     err.Error(),
		})
		metrics.IncStoreRetry(op)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return val, err
		}
	}
}
