package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitPolicy bounds the polling done while another caller owns a key.
type WaitPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

var DefaultWaitPolicy = WaitPolicy{MaxAttempts: 5, Delay: 50 * time.Millisecond}

func (p WaitPolicy) normalize() WaitPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultWaitPolicy.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

var errPending = errors.New("pending")

// Wait calls lookup until it reports ok, with p.Delay between calls and at most
// p.MaxAttempts calls. It returns ErrCoordinationTimeout once the bound is spent
// and ctx.Err() as soon as ctx is done. A lookup error stops the loop.
func Wait[T any](ctx context.Context, p WaitPolicy, lookup func(ctx context.Context) (T, bool, error)) (T, error) {
	p = p.normalize()
	var out T
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		v, ok, err := lookup(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errPending
		}
		out = v
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		var zero T
		if errors.Is(err, errPending) {
			return zero, ErrCoordinationTimeout
		}
		return zero, err
	}
	return out, nil
}
