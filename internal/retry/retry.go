// Package retry runs fallible operations with linear backoff.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy bounds a retry loop. The delay before attempt n+1 is BaseDelay*n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry, if set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Executor applies a Policy. The zero value is not usable; use New.
type Executor struct {
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(policy Policy, logger *slog.Logger) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{policy: policy, logger: logger, sleep: sleepContext}
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Delay returns the backoff applied after the given failed attempt.
func (e *Executor) Delay(attempt int) time.Duration {
	return e.policy.BaseDelay * time.Duration(attempt)
}

// Run calls op until it succeeds or the attempts are exhausted. The error of
// the last attempt is returned unchanged. A cancelled ctx stops the loop
// early, again returning the last attempt's error.
func Run[T any](ctx context.Context, e *Executor, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		e.logger.Debug("attempt", "attempt", attempt, "max_attempts", e.policy.MaxAttempts)

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		e.logger.Warn("attempt failed", "attempt", attempt, "error", err)

		if attempt >= e.policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			e.logger.Info("retry abandoned, context done", "attempt", attempt, "error", ctx.Err())
			return zero, lastErr
		}

		delay := e.Delay(attempt)
		e.logger.Info("retrying", "attempt", attempt, "delay_ms", delay.Milliseconds())
		if e.policy.OnRetry != nil {
			e.policy.OnRetry(attempt, err, delay)
		}
		if err := e.sleep(ctx, delay); err != nil {
			e.logger.Info("retry abandoned, context done", "attempt", attempt, "error", err)
			return zero, lastErr
		}
	}

	e.logger.Error("all attempts failed", "attempts", e.policy.MaxAttempts, "error", lastErr)
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
