package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"

	"github.com/redis/go-redis/v9"
)

var _ idempotency.Store = (*Store)(nil)

var (
	errNoTx = errors.New("redis: reserve outside transaction")

	// ErrLeaseExpired means the reservation vanished before the owner could
	// commit, typically because the operation outlived Lease.
	ErrLeaseExpired = errors.New("redis: reservation lease expired")
)

// Each record is a hash {id, created_at[, result]}. A reservation lives for
// Lease so a crashed owner cannot block the key forever; a resolved record
// lives for TTL.
var (
	reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'created_at', ARGV[2])
if tonumber(ARGV[3]) > 0 then redis.call('PEXPIRE', KEYS[1], ARGV[3]) end
return 1`)

	commitScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then return -1 end
if redis.call('HEXISTS', KEYS[1], 'result') == 1 then return 0 end
redis.call('HSET', KEYS[1], 'result', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
  redis.call('PERSIST', KEYS[1])
end
return 1`)

	releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then return 0 end
if redis.call('HEXISTS', KEYS[1], 'result') == 1 then return 0 end
return redis.call('DEL', KEYS[1])`)
)

type Store struct {
	Client *redis.Client
	TTL    time.Duration
	Lease  time.Duration
	Prefix string
}

func New(client *redis.Client, ttl, lease time.Duration) *Store {
	return &Store{Client: client, TTL: ttl, Lease: lease, Prefix: "idem:"}
}

type reservation struct {
	key     string
	id      int64
	result  []byte
	settled bool
}

type tx struct {
	mu  sync.Mutex
	res []*reservation
}

type txKey struct{}

func txFromCtx(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

func (s *Store) recordKey(key string) string { return s.Prefix + key }

func (s *Store) Find(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	vals, err := s.Client.HGetAll(ctx, s.recordKey(key)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if len(vals) == 0 {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	rec := domain.IdempotencyRecord{Key: key}
	if rec.ID, err = strconv.ParseInt(vals["id"], 10, 64); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("redis: corrupt record %q: %w", key, err)
	}
	if ms, err := strconv.ParseInt(vals["created_at"], 10, 64); err == nil {
		rec.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if v, ok := vals["result"]; ok {
		rec.Result = []byte(v)
	}
	return rec, nil
}

// Transact buffers results and writes them on commit. On failure the
// caller's own unresolved reservations are released.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromCtx(ctx) != nil {
		return fn(ctx)
	}
	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.release(context.WithoutCancel(ctx), t)
		return err
	}
	if err := s.commit(ctx, t); err != nil {
		s.release(context.WithoutCancel(ctx), t)
		return err
	}
	return nil
}

func (s *Store) Reserve(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	t := txFromCtx(ctx)
	if t == nil {
		return domain.IdempotencyRecord{}, errNoTx
	}
	id, err := s.Client.Incr(ctx, s.Prefix+"seq").Result()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	now := time.Now().UTC()
	ok, err := reserveScript.Run(ctx, s.Client, []string{s.recordKey(key)},
		id, now.UnixMilli(), s.Lease.Milliseconds()).Int()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if ok == 0 {
		return domain.IdempotencyRecord{}, idempotency.ErrDuplicateKey
	}
	t.mu.Lock()
	t.res = append(t.res, &reservation{key: key, id: id})
	t.mu.Unlock()
	return domain.IdempotencyRecord{ID: id, Key: key, CreatedAt: now.Truncate(time.Millisecond)}, nil
}

func (s *Store) SetResult(ctx context.Context, id int64, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	if t := txFromCtx(ctx); t != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, r := range t.res {
			if r.id != id {
				continue
			}
			if r.settled {
				return idempotency.ErrResultAlreadySet
			}
			r.result, r.settled = append([]byte{}, payload...), true
			return nil
		}
	}
	// Records are addressed by key; an id outside the current transaction can
	// only belong to a record this store already committed.
	return domain.ErrNotFound
}

func (s *Store) commit(ctx context.Context, t *tx) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.res {
		if !r.settled {
			continue
		}
		n, err := commitScript.Run(ctx, s.Client, []string{s.recordKey(r.key)},
			r.id, r.result, s.TTL.Milliseconds()).Int()
		if err != nil {
			return err
		}
		switch n {
		case 0:
			return idempotency.ErrResultAlreadySet
		case -1:
			return fmt.Errorf("%w: key %q", ErrLeaseExpired, r.key)
		}
	}
	return nil
}

func (s *Store) release(ctx context.Context, t *tx) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.res {
		_ = releaseScript.Run(ctx, s.Client, []string{s.recordKey(r.key)}, r.id).Err()
	}
}
