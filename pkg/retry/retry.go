// Package retry provides a bounded retry combinator for generators of values
// that must be unique, such as random codes.
package retry

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrExhausted is returned when every attempt produced a collision.
var ErrExhausted = errors.New("retry attempts exhausted")

// Regenerate calls gen to produce a fresh candidate and try to use it, up to
// attempts times. A try error for which collision returns true triggers another
// attempt with a new candidate; any other error is returned immediately. When
// all attempts collide Regenerate fails closed with an error wrapping
// ErrExhausted.
func Regenerate[T any](
	ctx context.Context,
	attempts int,
	gen func() (T, error),
	try func(ctx context.Context, candidate T) error,
	collision func(error) bool,
) (T, error) {
	var zero T
	if attempts < 1 {
		return zero, errors.Errorf("invalid attempt count %d", attempts)
	}

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		candidate, err := gen()
		if err != nil {
			return zero, errors.Wrapf(err, "generate candidate (attempt %d)", i+1)
		}

		err = try(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !collision(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, errors.Wrapf(ErrExhausted, "%d attempts, last: %v", attempts, lastErr)
}
