// Package retry runs fallible operations under a bounded exponential backoff policy with jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jpillora/backoff"
)

// jitterFraction is the upper bound of the random delay added on top of each backoff step,
// expressed as a fraction of that step.
const jitterFraction = 0.1

// Policy describes how many times an operation is attempted and how long to wait in between.
type Policy struct {
	Retries       int           // Total number of attempts, including the first one
	InitialDelay  time.Duration // Delay after the first failed attempt
	MaxDelay      time.Duration // Upper bound of the backoff step (jitter excluded)
	BackoffFactor float64       // Multiplier applied to the delay after every failed attempt

	// OnRetry, when set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)

	// rand returns a value in [0, 1). Overridden in tests.
	rand func() float64
}

// DefaultPolicy returns a Policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Retries:       3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// Validate reports whether the policy can be executed.
func (p Policy) Validate() error {
	if p.Retries < 1 {
		return fmt.Errorf("retries must be >= 1, got %d", p.Retries)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial delay must be >= 0, got %s", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay (%s) must be >= initial delay (%s)", p.MaxDelay, p.InitialDelay)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be >= 1, got %v", p.BackoffFactor)
	}
	return nil
}

// WithOnRetry returns a copy of the policy with the given retry hook.
func (p Policy) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Policy {
	p.OnRetry = fn
	return p
}

// Backoff returns the delay to wait after the given failed attempt (1-based), jitter excluded:
// min(InitialDelay * BackoffFactor^(attempt-1), MaxDelay). A zero InitialDelay never waits.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	b := backoff.Backoff{
		Min:    p.InitialDelay,
		Max:    p.MaxDelay,
		Factor: p.BackoffFactor,
		Jitter: false,
	}
	return b.ForAttempt(float64(attempt - 1))
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.Backoff(attempt)
	r := p.rand
	if r == nil {
		r = rand.Float64
	}
	return base + time.Duration(r()*jitterFraction*float64(base))
}

// Execute calls op until it succeeds, the attempts are exhausted, op returns a Permanent error
// or ctx is done. On exhaustion the error of the last attempt is returned.
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is the value-returning form of Policy.Execute. The value of a successful attempt is returned
// untouched.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.Retries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		d := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, err)
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, errors.Join(lastErr, ctx.Err())
		case <-t.C:
		}
	}

	return zero, lastErr
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Execute and Do return the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
