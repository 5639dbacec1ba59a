// Package resilience wraps outbound calls to collaborator services with retry
// and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// StatusError is returned by HTTP clients when a collaborator answers with a
// non-success status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether err is a throttling, server-side or network failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Options tune a Guard. Zero values fall back to defaults.
type Options struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 200 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	return o
}

// Guard runs operations through retry wrapped in a circuit breaker.
type Guard[T any] struct {
	name    string
	breaker circuitbreaker.CircuitBreaker[T]
	retrier retry.Retry[T]
}

// NewGuard builds a guard; name identifies the collaborator in logs.
func NewGuard[T any](name string, opts Options) *Guard[T] {
	opts = opts.withDefaults()
	threshold := opts.FailureThreshold

	return &Guard[T]{
		name: name,
		breaker: circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     opts.OpenTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= threshold
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				slog.Warn("circuit breaker state change",
					"collaborator", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
		retrier: retry.New[T](retry.Config{
			MaxAttempts:   opts.MaxAttempts,
			InitialDelay:  opts.InitialDelay,
			MaxDelay:      opts.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   Retryable,
		}),
	}
}

// Do runs op. When op itself failed, its last error is returned unchanged so
// callers can still match sentinels; an open breaker yields a wrapped error.
func (g *Guard[T]) Do(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	var last error
	attempt := func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		last = err
		return v, err
	}

	v, err := g.breaker.Execute(ctx, func(ctx context.Context) (T, error) {
		return g.retrier.Do(ctx, attempt)
	})
	if err == nil {
		return v, nil
	}
	if last != nil {
		return v, last
	}
	return v, fmt.Errorf("%s unavailable: %w", g.name, err)
}
