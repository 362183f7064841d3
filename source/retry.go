package source

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// calculateBackoff returns 80-100% of the configured backoff.
func calculateBackoff(config RetryConfig) time.Duration {
	return time.Duration(float64(config.Backoff) * (0.8 + 0.2*float64(time.Now().UnixNano()%100)/100))
}

// retryWithBackoff runs fn up to config.MaxAttempts times. onRetry is called
// before every attempt after the first.
func retryWithBackoff(ctx context.Context, config RetryConfig, onRetry func(attempt int, backoff time.Duration), fn func() error) error {
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(config)
			if onRetry != nil {
				onRetry(attempt+1, backoff)
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return errors.Wrapf(lastErr, "failed after %d attempts", attempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
