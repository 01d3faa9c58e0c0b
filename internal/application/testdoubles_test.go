package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"receipts-service/internal/domain"
)

var (
	ErrRepo = errors.New("repo error")
)

type fakeReceiptRepo struct {
	mu      sync.Mutex
	store   map[string]domain.Receipt
	err     error
	creates atomic.Int32
	delay   time.Duration
}

func (f *fakeReceiptRepo) Create(_ context.Context, r domain.Receipt) error {
	f.creates.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.store == nil {
		f.store = map[string]domain.Receipt{}
	}
	f.store[r.ID] = r
	return nil
}

func (f *fakeReceiptRepo) GetByID(_ context.Context, id string) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.store[id]
	if !ok {
		return domain.Receipt{}, ErrNotFound
	}
	return r, nil
}

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type seqIDGen struct{ n atomic.Int32 }

func (g *seqIDGen) NewID() string { return fmt.Sprintf("receipt-%d", g.n.Add(1)) }
