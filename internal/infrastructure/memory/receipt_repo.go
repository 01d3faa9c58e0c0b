package memory

import (
	"context"
	"fmt"
	"sync"

	"receipts-service/internal/domain"
)

// ReceiptRepo stores receipts in a map. Inserts made inside an
// IdempotencyStore transaction are undone when that transaction rolls back.
type ReceiptRepo struct {
	mu    sync.RWMutex
	store map[string]domain.Receipt
}

func NewReceiptRepo() *ReceiptRepo { return &ReceiptRepo{store: map[string]domain.Receipt{}} }

func (r *ReceiptRepo) Create(ctx context.Context, rec domain.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[rec.ID]; ok {
		return fmt.Errorf("memory: receipt %s already exists", rec.ID)
	}
	r.store[rec.ID] = rec
	if t := txFromCtx(ctx); t != nil {
		t.onRollback(func() {
			r.mu.Lock()
			delete(r.store, rec.ID)
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *ReceiptRepo) GetByID(_ context.Context, id string) (domain.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.store[id]
	if !ok {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *ReceiptRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store)
}
