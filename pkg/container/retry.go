package container

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// Retry runs op with exponential backoff, at most maxRetries+1 times.
// Errors marked with Fatal, and context cancellation, stop retrying
// immediately. Refreshers use it around flaky driver calls.
func Retry[T any](ctx context.Context, maxRetries int, op func() (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	var operation backoff.Operation[T] = func() (T, error) {
		v, err := op()
		if err != nil && (IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, ErrDestroyed)) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return v, perm.Err
		}
		return v, err
	}
	return v, nil
}
