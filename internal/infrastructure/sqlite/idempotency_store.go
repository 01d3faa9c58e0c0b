package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

type IdempotencyStore struct {
	db  *DB
	now func() time.Time
}

func NewIdempotencyStore(db *DB) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *IdempotencyStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.Do(ctx, fn)
}

func (s *IdempotencyStore) Find(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	const q = `SELECT id, key, result, created_at FROM idempotency_records WHERE key = ?`
	var (
		out     domain.IdempotencyRecord
		created string
	)
	err := s.db.SQL.QueryRowContext(ctx, q, key).Scan(&out.ID, &out.Key, &out.Result, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	out.CreatedAt, err = time.Parse(timeLayout, created)
	return out, err
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	tx := txFromCtx(ctx)
	if tx == nil {
		return domain.IdempotencyRecord{}, errNoTx
	}
	created := s.now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_records (key, created_at) VALUES (?, ?)`,
		key, created.Format(timeLayout))
	if isUniqueViolation(err) {
		return domain.IdempotencyRecord{}, idempotency.ErrDuplicateKey
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return domain.IdempotencyRecord{ID: id, Key: key, CreatedAt: created}, nil
}

func (s *IdempotencyStore) SetResult(ctx context.Context, id int64, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	c := s.db.conn(ctx)
	res, err := c.ExecContext(ctx, `UPDATE idempotency_records SET result = ? WHERE id = ? AND result IS NULL`, payload, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}
	var resolved bool
	err = c.QueryRowContext(ctx, `SELECT result IS NOT NULL FROM idempotency_records WHERE id = ?`, id).Scan(&resolved)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return err
	case resolved:
		return idempotency.ErrResultAlreadySet
	default:
		return domain.ErrNotFound
	}
}

// Purge deletes up to limit resolved records created before olderThan.
func (s *IdempotencyStore) Purge(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	res, err := s.db.SQL.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE id IN (
			SELECT id FROM idempotency_records
			WHERE result IS NOT NULL AND created_at < ?
			ORDER BY created_at
			LIMIT ?
		)`, olderThan.UTC().Format(timeLayout), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
