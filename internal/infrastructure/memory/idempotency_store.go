package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"

	"github.com/puzpuzpuz/xsync/v3"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

var errNoTx = errors.New("memory: reserve outside transaction")

// IdempotencyStore keeps the reservation table in process memory.
// LoadOrStore provides the insert-if-absent primitive. A Reserve that races a
// held key fails with ErrDuplicateKey at once, committed or not, so the
// coordinator's wait policy bounds how long the racer waits.
type IdempotencyStore struct {
	seq     atomic.Int64
	records *xsync.MapOf[string, *entry]
	now     func() time.Time
}

type entry struct {
	mu        sync.Mutex
	rec       domain.IdempotencyRecord
	committed bool
}

func (e *entry) snapshot() (domain.IdempotencyRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, e.committed
}

type tx struct {
	mu      sync.Mutex
	entries []*entry
	pending map[int64][]byte
	undo    []func()
}

// onRollback registers fn to run if the transaction rolls back.
func (t *tx) onRollback(fn func()) {
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}

type txKey struct{}

func txFromCtx(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		records: xsync.NewMapOf[string, *entry](),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *IdempotencyStore) Find(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	e, ok := s.records.Load(key)
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	rec, committed := e.snapshot()
	if !committed {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *IdempotencyStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromCtx(ctx) != nil {
		return fn(ctx)
	}
	t := &tx{pending: map[int64][]byte{}}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.rollback(t)
		return err
	}
	s.commit(t)
	return nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	t := txFromCtx(ctx)
	if t == nil {
		return domain.IdempotencyRecord{}, errNoTx
	}
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	e := &entry{rec: domain.IdempotencyRecord{ID: s.seq.Add(1), Key: key, CreatedAt: s.now()}}
	if _, loaded := s.records.LoadOrStore(key, e); loaded {
		return domain.IdempotencyRecord{}, idempotency.ErrDuplicateKey
	}
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e.rec, nil
}

func (s *IdempotencyStore) SetResult(ctx context.Context, id int64, payload []byte) error {
	if t := txFromCtx(ctx); t != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, e := range t.entries {
			if e.rec.ID != id {
				continue
			}
			if _, ok := t.pending[id]; ok {
				return idempotency.ErrResultAlreadySet
			}
			t.pending[id] = append([]byte{}, payload...)
			return nil
		}
	}
	err := error(domain.ErrNotFound)
	s.records.Range(func(_ string, e *entry) bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.committed || e.rec.ID != id {
			return true
		}
		if e.rec.Resolved() {
			err = idempotency.ErrResultAlreadySet
			return false
		}
		e.rec.Result = append([]byte{}, payload...)
		err = nil
		return false
	})
	return err
}

func (s *IdempotencyStore) commit(t *tx) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.mu.Lock()
		e.rec.Result = t.pending[e.rec.ID]
		e.committed = true
		e.mu.Unlock()
	}
}

func (s *IdempotencyStore) rollback(t *tx) {
	t.mu.Lock()
	entries, undo := t.entries, t.undo
	t.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	for _, e := range entries {
		s.records.Compute(e.rec.Key, func(cur *entry, loaded bool) (*entry, bool) {
			return cur, !loaded || cur == e
		})
	}
}

// Purge drops resolved records created before olderThan, at most limit of them.
func (s *IdempotencyStore) Purge(_ context.Context, olderThan time.Time, limit int) (int64, error) {
	var n int64
	s.records.Range(func(key string, e *entry) bool {
		if limit > 0 && n >= int64(limit) {
			return false
		}
		rec, committed := e.snapshot()
		if !committed || !rec.Resolved() || !rec.CreatedAt.Before(olderThan) {
			return true
		}
		s.records.Compute(key, func(cur *entry, loaded bool) (*entry, bool) {
			return cur, !loaded || cur == e
		})
		n++
		return true
	})
	return n, nil
}
