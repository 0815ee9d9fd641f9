package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls retry timing. It mirrors the teacher's retry
// configuration shape: a base delay doubled per attempt, capped, with
// uniform jitter added on top to avoid thundering-herd retries against the
// same worker.
type BackoffConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64 // upper bound of additive jitter, e.g. 0.3 = up to +30%
}

// DefaultBackoffConfig mirrors spec.md's resilience defaults: 2 retries,
// doubling from a 1s base delay, plus up to 30% uniform jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Jitter:     0.3,
	}
}

// Delay returns the backoff delay before retry attempt n (1-indexed), given
// a per-error base delay (the configured BaseDelay scaled by a per-error-type
// multiplier — see BaseDelayFor).
func (c BackoffConfig) Delay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay += delay * c.Jitter * rand.Float64()
	}
	return time.Duration(delay)
}

// Do runs fn, retrying on error up to MaxRetries times with backoff, and
// stops early when shouldRetry reports the error is not worth retrying. The
// base delay for each retry is derived from the error via baseDelay, which
// may be nil to use cfg.BaseDelay unconditionally. It returns the total
// number of retry attempts performed and the cumulative delay actually
// slept.
func Do(ctx context.Context, cfg BackoffConfig, shouldRetry func(error) bool, baseDelay func(error) time.Duration, fn func(ctx context.Context) error) (attempts int, totalDelay time.Duration, err error) {
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, totalDelay, nil
		}
		if attempt >= cfg.MaxRetries || (shouldRetry != nil && !shouldRetry(err)) {
			return attempt, totalDelay, err
		}
		base := cfg.BaseDelay
		if baseDelay != nil {
			base = baseDelay(err)
		}
		delay := cfg.Delay(attempt+1, base)
		totalDelay += delay
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, totalDelay, ctx.Err()
		case <-timer.C:
		}
	}
}
