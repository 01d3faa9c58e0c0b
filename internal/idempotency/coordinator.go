package idempotency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"receipts-service/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Coordinator runs an operation at most once per idempotency key, using the
// store's unique constraint as the only mutual exclusion primitive.
type Coordinator struct {
	store  Store
	policy WaitPolicy
	log    *zap.Logger
	group  *singleflight.Group
}

type Option func(*Coordinator)

func WithWaitPolicy(p WaitPolicy) Option { return func(c *Coordinator) { c.policy = p.normalize() } }
func WithLogger(l *zap.Logger) Option    { return func(c *Coordinator) { c.log = l } }

// WithCoalescing shares one protocol run between concurrent callers of the
// same key inside this process. Callers in other processes still meet on the store.
func WithCoalescing() Option { return func(c *Coordinator) { c.group = &singleflight.Group{} } }

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, policy: DefaultWaitPolicy}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Do returns the committed payload for key, running op to produce it only if
// no other caller has done so. The returned slice must not be modified.
func (c *Coordinator) Do(ctx context.Context, key string, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if len(key) > MaxKeyLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	if c.group == nil {
		return c.do(ctx, key, op)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return c.do(context.WithoutCancel(ctx), key, op)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return bytes.Clone(res.Val.([]byte)), nil
	}
}

func (c *Coordinator) do(ctx context.Context, key string, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	log := c.log.With(zap.String("idempotency_key", key))

	rec, err := c.store.Find(ctx, key)
	switch {
	case err == nil && rec.Resolved():
		fastReplaysTotal.Inc()
		log.Debug("idempotency.replay", zap.String("path", "fast"))
		return rec.Result, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	payload, err := c.reserveAndRun(ctx, log, key, op)
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, ErrDuplicateKey):
		conflictsTotal.Inc()
		log.Debug("idempotency.conflict")
		return c.wait(ctx, log, key, nil)
	case errors.Is(err, ErrStoreBusy):
		storeBusyTotal.Inc()
		log.Debug("idempotency.store_busy")
		return c.wait(ctx, log, key, op)
	default:
		return nil, err
	}
}

func (c *Coordinator) reserveAndRun(ctx context.Context, log *zap.Logger, key string, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var payload []byte
	var opErr error
	err := c.store.Transact(ctx, func(ctx context.Context) error {
		rec, err := c.store.Reserve(ctx, key)
		if err != nil {
			return err
		}
		out, err := op(ctx)
		if err != nil {
			opErr = err
			return err
		}
		if out == nil {
			out = []byte{}
		}
		if err := c.store.SetResult(ctx, rec.ID, out); err != nil {
			return err
		}
		payload = out
		return nil
	})
	switch {
	case err == nil:
		executionsTotal.Inc()
		log.Info("idempotency.executed", zap.Int("result_bytes", len(payload)))
		return payload, nil
	case opErr != nil:
		operationFailuresTotal.Inc()
		log.Warn("idempotency.operation_failed", zap.Error(err))
		return nil, err
	case errors.Is(err, ErrResultAlreadySet):
		protocolViolationsTotal.Inc()
		log.Error("idempotency.protocol_violation", zap.Error(err))
		return nil, err
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrStoreBusy):
		return nil, err
	default:
		log.Warn("idempotency.reserve_failed", zap.Error(err))
		return nil, fmt.Errorf("idempotency reserve: %w", err)
	}
}

// wait polls for the owner's result. A non-nil op means the reservation was
// never attempted because the store was busy, so each round also retries it
// until the key turns out to be held by someone else.
func (c *Coordinator) wait(ctx context.Context, log *zap.Logger, key string, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	ran := false
	payload, err := Wait(ctx, c.policy, func(ctx context.Context) ([]byte, bool, error) {
		rec, err := c.store.Find(ctx, key)
		switch {
		case err == nil:
			return rec.Result, rec.Resolved(), nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, false, err
		case op == nil:
			return nil, false, nil
		}
		out, err := c.reserveAndRun(ctx, log, key, op)
		switch {
		case err == nil:
			ran = true
			return out, true, nil
		case errors.Is(err, ErrDuplicateKey):
			op = nil
			return nil, false, nil
		case errors.Is(err, ErrStoreBusy):
			return nil, false, nil
		default:
			return nil, false, err
		}
	})
	waitDuration.UpdateDuration(start)
	switch {
	case err == nil:
		if !ran {
			waitReplaysTotal.Inc()
			log.Debug("idempotency.replay", zap.String("path", "wait"), zap.Duration("waited", time.Since(start)))
		}
		return payload, nil
	case errors.Is(err, ErrCoordinationTimeout):
		timeoutsTotal.Inc()
		log.Warn("idempotency.wait_timeout",
			zap.Int("attempts", c.policy.MaxAttempts),
			zap.Duration("delay", c.policy.Delay),
		)
		return nil, fmt.Errorf("%w: key %q still unresolved after %d attempts", ErrCoordinationTimeout, key, c.policy.MaxAttempts)
	default:
		return nil, err
	}
}
