// Package stage runs calls to external dependencies with a deterministic
// fallback. A stage backed by an external service never fails a run: when
// the call errors, times out or is rejected by its breaker, the runner
// returns the stage's fallback value and records why.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Status is the per-stage outcome reported to callers
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFallback Status = "fallback"
	StatusFailed   Status = "failed"
)

// External is a stage backed by an external dependency
type External[T any] interface {
	Name() string
	Fetch(ctx context.Context) (T, error)
	Fallback() T
}

// Funcs adapts plain functions to External
type Funcs[T any] struct {
	StageName    string
	FetchFunc    func(ctx context.Context) (T, error)
	FallbackFunc func() T
}

func (f Funcs[T]) Name() string { return f.StageName }

func (f Funcs[T]) Fetch(ctx context.Context) (T, error) { return f.FetchFunc(ctx) }

func (f Funcs[T]) Fallback() T { return f.FallbackFunc() }

// Policy bounds a single stage call
type Policy struct {
	// Timeout applies to each attempt; zero means no per-attempt bound
	Timeout time.Duration
	// Retries is the number of extra attempts after the first
	Retries int
	// Backoff is multiplied by the attempt number before each retry
	Backoff time.Duration
	// Breaker, when set, wraps every attempt
	Breaker *gobreaker.CircuitBreaker
	// Limiter, when set, is waited on before every attempt
	Limiter *rate.Limiter
}

// Outcome is the result of FetchOrDefault. Err is set whenever Status is fallback.
type Outcome[T any] struct {
	Value    T
	Status   Status
	Err      error
	Attempts int
	Duration time.Duration
}

// UnavailableError records why a stage fell back. It is carried in
// Outcome.Err and never returned to the caller of a run.
type UnavailableError struct {
	Stage string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("stage %s unavailable: %v", e.Stage, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// retryable is implemented by errors that know whether a retry can help
type retryable interface {
	IsRetryable() bool
}

// FetchOrDefault calls ext under policy and falls back to ext.Fallback()
// on any failure. It never returns an error; the outcome carries it.
func FetchOrDefault[T any](ctx context.Context, ext External[T], policy Policy) Outcome[T] {
	start := time.Now()
	name := ext.Name()

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * policy.Backoff
			log.Warn().
				Err(lastErr).
				Str("stage", name).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying stage call")

			if !sleep(ctx, backoff) {
				lastErr = ctx.Err()
				break
			}
		}
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts++
		value, err := attemptOnce(ctx, ext, policy)
		if err == nil {
			return Outcome[T]{
				Value:    value,
				Status:   StatusSuccess,
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}
		lastErr = err

		if !shouldRetry(ctx, err) {
			break
		}
	}

	out := Outcome[T]{
		Value:    ext.Fallback(),
		Status:   StatusFallback,
		Err:      &UnavailableError{Stage: name, Err: lastErr},
		Attempts: attempts,
		Duration: time.Since(start),
	}

	log.Warn().
		Err(lastErr).
		Str("stage", name).
		Int("attempts", attempts).
		Dur("duration", out.Duration).
		Msg("Stage unavailable, using fallback")

	return out
}

func attemptOnce[T any](ctx context.Context, ext External[T], policy Policy) (T, error) {
	var zero T

	if policy.Limiter != nil {
		if err := policy.Limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	if policy.Breaker == nil {
		return ext.Fetch(callCtx)
	}

	result, err := policy.Breaker.Execute(func() (interface{}, error) {
		return ext.Fetch(callCtx)
	})
	if err != nil {
		return zero, err
	}
	value, _ := result.(T)
	return value, nil
}

// shouldRetry stops on caller cancellation, an open breaker, or an error
// that declares itself non-retryable.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
