package pg

import (
	"context"
	"errors"

	"receipts-service/internal/domain"
	"receipts-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ReceiptRepo struct{ db *DB }

func NewReceiptRepo(db *DB) *ReceiptRepo { return &ReceiptRepo{db: db} }

// Create joins the transaction carried by ctx when there is one.
func (r *ReceiptRepo) Create(ctx context.Context, rec domain.Receipt) error {
	const ins = `
        INSERT INTO receipts(id, title, amount, currency, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	log := logx.L().With(
		zap.String("repo", "receipt"),
		zap.String("operation", "Create"),
		zap.String("id", rec.ID),
		zap.Bool("in_tx", txFromCtx(ctx) != nil),
	)
	log.Info("sql.exec_start")
	tag, err := conn(ctx, r.db.Pool).Exec(ctx, ins, rec.ID, rec.Title, rec.Amount, rec.Currency, string(rec.Status), rec.CreatedAt)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", tag.RowsAffected()))
	return nil
}

func (r *ReceiptRepo) GetByID(ctx context.Context, id string) (domain.Receipt, error) {
	const q = `
        SELECT id::text, title, amount::float8, currency, status, created_at
        FROM receipts WHERE id=$1`
	var out domain.Receipt
	var status string
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&out.ID, &out.Title, &out.Amount, &out.Currency, &status, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Receipt{}, domain.ErrNotFound
	}
	if err != nil {
		logx.L().Error("sql.query_failed",
			zap.String("repo", "receipt"),
			zap.String("operation", "GetByID"),
			zap.String("id", id),
			zap.Error(err),
		)
		return domain.Receipt{}, err
	}
	out.Status = domain.ReceiptStatus(status)
	return out, nil
}
