package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy describes the capped exponential backoff applied to remote reads.
// Delay for attempt n is min(Base*2^n, Cap).
type RetryPolicy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries uint64
}

// DefaultRetryPolicy retries three times starting at one second, capped at thirty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Second, Cap: 30 * time.Second, MaxRetries: 3}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Do runs fn, retrying failures other than pgx.ErrNoRows and context cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
}
