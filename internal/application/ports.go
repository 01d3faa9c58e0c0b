package application

import (
	"context"
	"time"

	"receipts-service/internal/domain"
)

type ReceiptRepo interface {
	// Create must join the transaction carried by ctx, if any, so that a
	// receipt never outlives a rolled back reservation.
	Create(ctx context.Context, r domain.Receipt) error
	GetByID(ctx context.Context, id string) (domain.Receipt, error)
}

// RecordPurger removes resolved idempotency records past retention.
type RecordPurger interface {
	Purge(ctx context.Context, olderThan time.Time, limit int) (int64, error)
}
