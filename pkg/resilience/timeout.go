package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/labinochka/OIP/pkg/errors"
)

// WithTimeout runs fn under a deadline of timeout and returns its result.
// When the deadline passes first the error matches both apperrors.ErrTimeout
// and context.DeadlineExceeded, and fn is left to observe its cancelled
// context in the background. A non-positive timeout runs fn directly.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		done <- outcome{val, err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == context.DeadlineExceeded {
			return zero, timeoutError(name, timeout)
		}
		return out.val, out.err
	case <-ctx.Done():
		if ctx.Err() != context.DeadlineExceeded {
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return zero, timeoutError(name, timeout)
	}
}

func timeoutError(name string, timeout time.Duration) error {
	return fmt.Errorf("%s exceeded %v: %w: %w", name, timeout, apperrors.ErrTimeout, context.DeadlineExceeded)
}
