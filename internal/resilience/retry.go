// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
)

// RetryPolicy configures exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the delay, e.g. 0.1

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error except context cancellation is retryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy matches the documented defaults: 3 attempts,
// 0.5s initial delay, doubling, 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Retry runs fn with exponential backoff until it succeeds, exhausts the
// attempt budget, hits a non-retryable error, or ctx is cancelled.
// Cancellation is never swallowed: it aborts immediately with ctx.Err().
func Retry(ctx context.Context, operation string, policy RetryPolicy, fn func(context.Context) error) error {
	policy = policy.normalized()
	logger := log.WithComponentFromContext(ctx, "retry")

	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		// Per-call timeouts are retryable; cancellation of the caller is not.
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		metrics.RecordRetry(operation)
		wait := jittered(delay, policy.Jitter)
		logger.Warn().
			Err(err).
			Str("operation", operation).
			Int(log.FieldAttempt, attempt).
			Dur("backoff", wait).
			Msg("operation failed, backing off")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
	}

	logger.Error().
		Err(lastErr).
		Str("operation", operation).
		Int("attempts", policy.MaxAttempts).
		Msg("operation failed after all retries")
	return lastErr
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	// Spread the delay uniformly in [d*(1-f), d*(1+f)].
	spread := (rand.Float64()*2 - 1) * fraction
	return time.Duration(float64(d) * (1 + spread))
}
