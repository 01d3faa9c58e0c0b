package redisstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"
	redisstore "receipts-service/internal/infrastructure/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

func newStore(t *testing.T, ttl, lease time.Duration) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, ttl, lease), mr
}

func TestReserveAndCommit(t *testing.T) {
	store, mr := newStore(t, time.Hour, 30*time.Second)
	ctx := context.Background()

	err := store.Transact(ctx, func(ctx context.Context) error {
		rec, err := store.Reserve(ctx, "k1")
		if err != nil {
			return err
		}
		_, err = store.Reserve(ctx, "k1")
		require.ErrorIs(t, err, idempotency.ErrDuplicateKey)

		pending, err := store.Find(ctx, "k1")
		require.NoError(t, err)
		require.False(t, pending.Resolved())
		require.Equal(t, 30*time.Second, mr.TTL("idem:k1"))

		return store.SetResult(ctx, rec.ID, []byte(`{"id":"r1"}`))
	})
	require.NoError(t, err)

	rec, err := store.Find(ctx, "k1")
	require.NoError(t, err)
	require.True(t, rec.Resolved())
	require.Equal(t, []byte(`{"id":"r1"}`), rec.Result)
	require.Equal(t, time.Hour, mr.TTL("idem:k1"))
}

func TestZeroTTLPersistsResult(t *testing.T) {
	store, mr := newStore(t, 0, 30*time.Second)
	ctx := context.Background()
	require.NoError(t, store.Transact(ctx, func(ctx context.Context) error {
		rec, err := store.Reserve(ctx, "k")
		if err != nil {
			return err
		}
		return store.SetResult(ctx, rec.ID, nil)
	}))
	require.Zero(t, mr.TTL("idem:k"))

	rec, err := store.Find(ctx, "k")
	require.NoError(t, err)
	require.True(t, rec.Resolved())
}

func TestRollbackReleasesReservation(t *testing.T) {
	store, mr := newStore(t, time.Hour, 30*time.Second)
	ctx := context.Background()

	err := store.Transact(ctx, func(ctx context.Context) error {
		if _, err := store.Reserve(ctx, "k"); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	require.False(t, mr.Exists("idem:k"))

	_, err = store.Find(ctx, "k")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetResultTwiceInTransaction(t *testing.T) {
	store, _ := newStore(t, time.Hour, 30*time.Second)
	err := store.Transact(context.Background(), func(ctx context.Context) error {
		rec, err := store.Reserve(ctx, "k")
		if err != nil {
			return err
		}
		require.NoError(t, store.SetResult(ctx, rec.ID, []byte("a")))
		return store.SetResult(ctx, rec.ID, []byte("b"))
	})
	require.ErrorIs(t, err, idempotency.ErrResultAlreadySet)
}

func TestExpiredLeaseIsNotOverwritten(t *testing.T) {
	store, mr := newStore(t, time.Hour, time.Second)
	ctx := context.Background()

	err := store.Transact(ctx, func(ctx context.Context) error {
		rec, err := store.Reserve(ctx, "k")
		if err != nil {
			return err
		}
		mr.FastForward(2 * time.Second)

		// A new owner takes the key once the lease is gone.
		require.NoError(t, store.Transact(context.Background(), func(ctx context.Context) error {
			other, err := store.Reserve(ctx, "k")
			if err != nil {
				return err
			}
			return store.SetResult(ctx, other.ID, []byte("second"))
		}))
		return store.SetResult(ctx, rec.ID, []byte("first"))
	})
	require.ErrorIs(t, err, redisstore.ErrLeaseExpired)

	rec, err := store.Find(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), rec.Result)
}

func TestCoordinatorOverRedis(t *testing.T) {
	store, _ := newStore(t, time.Hour, 30*time.Second)
	c := idempotency.NewCoordinator(store,
		idempotency.WithWaitPolicy(idempotency.WaitPolicy{MaxAttempts: 100, Delay: 5 * time.Millisecond}))

	var runs atomic.Int32
	const callers = 10
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Do(context.Background(), "shared", func(context.Context) ([]byte, error) {
				runs.Add(1)
				time.Sleep(20 * time.Millisecond)
				return []byte("once"), nil
			})
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, runs.Load())
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, []byte("once"), results[i])
	}
}
