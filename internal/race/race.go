// Package race runs equivalent operations concurrently and keeps the first
// success.
package race

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAllFailed is wrapped by the error returned when every attempt failed.
	ErrAllFailed = errors.New("all attempts failed")
	// ErrNoAttempts is returned when First is called without attempts.
	ErrNoAttempts = errors.New("no attempts to race")
)

// Attempt is one candidate operation. It must honour ctx cancellation.
type Attempt[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	val T
	err error
}

// First starts every attempt at once and returns the first one that
// succeeds. The remaining attempts are cancelled through their context and
// their results are discarded. When all attempts fail the returned error
// wraps ErrAllFailed together with the individual errors.
func First[T any](ctx context.Context, attempts ...Attempt[T]) (T, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, ErrNoAttempts
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so abandoned attempts never block on send
	results := make(chan outcome[T], len(attempts))
	for _, a := range attempts {
		go func(a Attempt[T]) {
			v, err := a(ctx)
			results <- outcome[T]{val: v, err: err}
		}(a)
	}

	errs := make([]error, 0, len(attempts))
	for range attempts {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case r := <-results:
			if r.err == nil {
				return r.val, nil
			}
			errs = append(errs, r.err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
