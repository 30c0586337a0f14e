// Package retry provides the fixed-delay retry combinator used by every
// outbound I/O path in the relay (identity lookups, mail delivery). Retry
// semantics live in an explicit Policy value so callers stay testable: tests
// inject a no-op sleep function and count attempts instead of waiting.
package retry

import (
	"context"
	"time"
)

// Policy defines the bounded, constant-backoff retry parameters. The relay
// deliberately uses a fixed delay rather than exponential backoff; the
// expected event rate is low and the simplicity is worth it.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed pause between consecutive attempts.
	Delay time.Duration
}

// Runner executes operations under a Policy.
type Runner struct {
	policy  Policy
	sleepFn func(time.Duration)
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

// WithSleepFunc overrides the sleep function used between attempts.
// Intended for tests to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(r *Runner) {
		r.sleepFn = fn
	}
}

// New creates a Runner for the given policy. A MaxAttempts below one is
// treated as one so an operation always runs at least once.
func New(policy Policy, opts ...Option) *Runner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	r := &Runner{
		policy:  policy,
		sleepFn: time.Sleep,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Policy returns the policy the Runner was built with.
func (r *Runner) Policy() Policy {
	return r.policy
}

// Do invokes fn until it succeeds, the policy is exhausted, or the context is
// canceled. It returns nil on the first success, the context error if the
// context ends while waiting, and otherwise the error from the final attempt.
//
// onRetry, when non-nil, is called after each failed attempt that will be
// retried; callers use it to log per-attempt warnings with the attempt number.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		r.sleepFn(r.policy.Delay)
	}

	return lastErr
}
