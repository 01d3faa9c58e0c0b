package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Operation is the side-effecting work guarded by a key. The context it gets
// carries the reservation transaction, so repositories that honour it commit
// or roll back together with the reservation.
type Operation[T any] func(ctx context.Context) (T, error)

// Execute runs op at most once for key and returns the same result to every
// caller presenting that key. A nil or blank key runs op directly. The owner
// also gets the value decoded from the stored payload, so fields that do not
// survive encoding/json are dropped for every caller alike.
func Execute[T any](ctx context.Context, c *Coordinator, key *string, op Operation[T]) (T, error) {
	if key == nil || strings.TrimSpace(*key) == "" {
		bypassTotal.Inc()
		return op(ctx)
	}

	payload, err := c.Do(ctx, *key, func(ctx context.Context) ([]byte, error) {
		v, err := op(ctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return b, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode stored result: %w", err)
	}
	return out, nil
}
