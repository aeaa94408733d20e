// Package retry retries operations with exponential backoff and jitter.
// Used for startup connections to PostgreSQL and Redis.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (e *permanent) Error() string { return e.err.Error() }
func (e *permanent) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it at once, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanent
	return errors.As(err, &p)
}

// Policy describes how an operation is retried. The zero value makes a
// single attempt.
type Policy struct {
	// Attempts counts the first call too.
	Attempts int

	// Initial is the delay before the first retry. Each later delay is
	// Multiplier times the previous one, capped at Max.
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter spreads each delay by up to ±Jitter of its value (0..1).
	Jitter float64

	// RetryIf selects retryable errors. Nil retries every error.
	RetryIf func(error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Connect is the policy for dialing a backing service at startup.
// Attempts spread over roughly ten seconds.
func Connect(attempts int, onRetry func(attempt int, err error, delay time.Duration)) Policy {
	return Policy{
		Attempts:   attempts,
		Initial:    250 * time.Millisecond,
		Max:        4 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
		OnRetry:    onRetry,
	}
}

// Do calls op until it succeeds, the attempts run out, the error is not
// retryable or ctx is done. It returns the last error of op.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		if attempt >= attempts || (p.RetryIf != nil && !p.RetryIf(err)) {
			return err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

// Delay returns the sleep after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Initial) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += d * min(p.Jitter, 1) * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = op(ctx)
		return err
	})
	return out, err
}
