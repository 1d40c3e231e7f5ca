package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "propchain/internal/common/errors"
)

// Policy is the shared retry policy for read-side provider calls.
// Writes are never retried: a submitted transaction cannot be unsent.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialInterval: 250 * time.Millisecond}
}

// Do runs op until it succeeds, returns a non-transient error, or attempts run out.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, attempts-1), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
