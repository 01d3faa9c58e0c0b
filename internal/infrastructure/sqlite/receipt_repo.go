package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"receipts-service/internal/domain"
)

type ReceiptRepo struct{ db *DB }

func NewReceiptRepo(db *DB) *ReceiptRepo { return &ReceiptRepo{db: db} }

func (r *ReceiptRepo) Create(ctx context.Context, rec domain.Receipt) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO receipts (id, title, amount, currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Amount, rec.Currency, string(rec.Status), rec.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (r *ReceiptRepo) GetByID(ctx context.Context, id string) (domain.Receipt, error) {
	var (
		out             domain.Receipt
		status, created string
	)
	err := r.db.SQL.QueryRowContext(ctx,
		`SELECT id, title, amount, currency, status, created_at FROM receipts WHERE id = ?`, id,
	).Scan(&out.ID, &out.Title, &out.Amount, &out.Currency, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Receipt{}, err
	}
	out.Status = domain.ReceiptStatus(status)
	out.CreatedAt, err = time.Parse(timeLayout, created)
	return out, err
}
