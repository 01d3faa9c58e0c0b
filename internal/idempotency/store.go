package idempotency

import (
	"context"

	"receipts-service/internal/domain"
)

// MaxKeyLength matches the width of the key column.
const MaxKeyLength = 128

// Store is the durable reservation table the coordinator runs on.
type Store interface {
	// Find is a non-locking read. It returns domain.ErrNotFound when no
	// committed record exists for key.
	Find(ctx context.Context, key string) (domain.IdempotencyRecord, error)

	// Transact runs fn inside a transaction carried by the context passed to fn.
	// It commits when fn returns nil and rolls back otherwise.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error

	// Reserve inserts an unresolved record for key within the context
	// transaction. It returns ErrDuplicateKey when the key is taken.
	Reserve(ctx context.Context, key string) (domain.IdempotencyRecord, error)

	// SetResult stores payload on the record. It returns ErrResultAlreadySet
	// when a result is already present.
	SetResult(ctx context.Context, id int64, payload []byte) error
}

// TransactFunc matches Store.Transact and the unit-of-work helpers of the
// storage packages.
type TransactFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// WithOuterTx returns a Store whose transactions also open outer inside the
// store transaction, so an operation writing to a different database commits
// there before the result is stored. A failed outer commit releases the
// reservation.
func WithOuterTx(s Store, outer TransactFunc) Store {
	if outer == nil {
		return s
	}
	return outerTxStore{Store: s, outer: outer}
}

type outerTxStore struct {
	Store
	outer TransactFunc
}

func (s outerTxStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Store.Transact(ctx, func(ctx context.Context) error {
		return s.outer(ctx, fn)
	})
}
