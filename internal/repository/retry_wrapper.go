package repository

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig tunes how RetryWrapper retries a failed operation.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt; each subsequent
	// attempt doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Jitter is the fraction (0-1) of the computed delay randomized away,
	// so concurrent callers retrying a locked database don't all wake at
	// once.
	Jitter float64
}

// RetryConfigForReads is tuned for read-only queries: more attempts, short
// delays, since reads are cheap to retry and rarely conflict.
func RetryConfigForReads() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond, Jitter: 0.2}
}

// RetryConfigForWrites is tuned for mutating operations: fewer attempts,
// longer delays, to give a lock-holding writer time to finish.
func RetryConfigForWrites() RetryConfig {
	return RetryConfig{MaxAttempts: 4, BaseDelay: 25 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Jitter: 0.3}
}

// RetryConfigForCritical is tuned for operations that must not be abandoned
// early: many attempts, a longer ceiling.
func RetryConfigForCritical() RetryConfig {
	return RetryConfig{MaxAttempts: 8, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: 0.3}
}

func (c RetryConfig) delayFor(attempt int) time.Duration {
	if c.BaseDelay <= 0 {
		c = RetryConfigForWrites()
	}
	d := c.BaseDelay * time.Duration(1<<uint(attempt-1))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter > 0 {
		jitterRange := float64(d) * c.Jitter
		d = d - time.Duration(jitterRange/2) + time.Duration(rand.Float64()*jitterRange)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// retryableErrorSubstrings are messages surfaced by the GORM sqlite/mysql/
// postgres drivers for transient contention. Any other error is treated as
// permanent and returned to the caller on the first attempt.
var retryableErrorSubstrings = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"deadlock",
	"try restarting transaction",
	"connection reset",
	"too many connections",
}

// IsRetryable reports whether err looks like a transient failure worth
// retrying, by matching driver error text rather than a specific driver's
// error type so the same wrapper works across sqlite, mysql, and postgres.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RetryWrapper runs a repository operation with retry-on-transient-failure,
// generalizing tvarr's repository layer the way the original
// retry_wrapper.rs wrapped every trait method: instead of one wrapper type
// per repository interface, Execute wraps a single call so any repository
// method can opt in without a parallel hierarchy of decorator types.
type RetryWrapper struct {
	cfg RetryConfig
}

// NewRetryWrapper creates a RetryWrapper with the given configuration.
func NewRetryWrapper(cfg RetryConfig) *RetryWrapper {
	return &RetryWrapper{cfg: cfg}
}

// Execute calls fn, retrying with exponential backoff while the context
// remains live, IsRetryable(err) is true, and attempts remain. The last
// error is returned unwrapped if all attempts are exhausted.
func Execute[T any](ctx context.Context, w *RetryWrapper, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cfg := w.cfg
	if cfg.MaxAttempts <= 0 {
		cfg = RetryConfigForWrites()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, errors.Join(lastErr, ctx.Err())
		case <-time.After(cfg.delayFor(attempt)):
		}
	}
	return zero, lastErr
}

// ForReads wraps a read operation with read-optimized retry settings.
func ForReads[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	return Execute(ctx, NewRetryWrapper(RetryConfigForReads()), fn)
}

// ForWrites wraps a write operation with write-optimized retry settings.
func ForWrites[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	return Execute(ctx, NewRetryWrapper(RetryConfigForWrites()), fn)
}

// ForCritical wraps an operation that should be retried aggressively before
// giving up.
func ForCritical[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	return Execute(ctx, NewRetryWrapper(RetryConfigForCritical()), fn)
}
