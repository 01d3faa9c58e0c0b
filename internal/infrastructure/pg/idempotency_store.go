package pg

import (
	"context"
	"errors"
	"strconv"
	"time"

	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"
	infraconfig "receipts-service/internal/infrastructure/config"
	"receipts-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	uniqueViolation  = "23505"
	lockNotAvailable = "55P03"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

// IdempotencyStore keeps reservations in idempotency_records. The unique index
// on key is the mutex: an INSERT racing an uncommitted reservation waits on the
// owner's row lock. The wait is capped by lockTimeout, after which the racer
// gets ErrDuplicateKey and the coordinator's bounded poll takes over.
type IdempotencyStore struct {
	db          *DB
	uow         *UnitOfWork
	lockTimeout time.Duration
}

// NewIdempotencyStore returns a store whose reservations wait at most
// lockTimeout on a concurrent owner. A non-positive value selects
// DefaultPGLockTimeout.
func NewIdempotencyStore(db *DB, lockTimeout time.Duration) *IdempotencyStore {
	if lockTimeout <= 0 {
		lockTimeout = infraconfig.DefaultPGLockTimeout
	}
	return &IdempotencyStore{db: db, uow: &UnitOfWork{Pool: db.Pool}, lockTimeout: lockTimeout}
}

func (s *IdempotencyStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.uow.Do(ctx, fn)
}

func (s *IdempotencyStore) Find(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	const q = `SELECT id, key, result, created_at FROM idempotency_records WHERE key=$1`
	var out domain.IdempotencyRecord
	err := s.db.Pool.QueryRow(ctx, q, key).Scan(&out.ID, &out.Key, &out.Result, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	if err != nil {
		logx.L().Error("sql.query_failed",
			zap.String("repo", "idempotency"),
			zap.String("operation", "Find"),
			zap.String("key", key),
			zap.Error(err),
		)
		return domain.IdempotencyRecord{}, err
	}
	return out, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	tx := txFromCtx(ctx)
	if tx == nil {
		return domain.IdempotencyRecord{}, errNoTx
	}
	const ins = `
        INSERT INTO idempotency_records(key)
        VALUES ($1)
        RETURNING id, key, created_at`
	log := logx.L().With(
		zap.String("repo", "idempotency"),
		zap.String("operation", "Reserve"),
		zap.String("key", key),
	)
	timeout := strconv.FormatInt(s.lockTimeout.Milliseconds(), 10)
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		log.Error("sql.exec_failed", zap.String("step", "lock_timeout"), zap.Error(err))
		return domain.IdempotencyRecord{}, err
	}
	var out domain.IdempotencyRecord
	err := tx.QueryRow(ctx, ins, key).Scan(&out.ID, &out.Key, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				log.Debug("sql.exec_conflict")
				return domain.IdempotencyRecord{}, idempotency.ErrDuplicateKey
			case lockNotAvailable:
				log.Debug("sql.exec_conflict", zap.String("reason", "owner still running"))
				return domain.IdempotencyRecord{}, idempotency.ErrDuplicateKey
			}
		}
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.IdempotencyRecord{}, err
	}
	// The owner's operation runs in this transaction under the session default.
	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout TO DEFAULT`); err != nil {
		log.Error("sql.exec_failed", zap.String("step", "lock_timeout"), zap.Error(err))
		return domain.IdempotencyRecord{}, err
	}
	log.Debug("sql.exec_success", zap.Int64("id", out.ID))
	return out, nil
}

func (s *IdempotencyStore) SetResult(ctx context.Context, id int64, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	c := conn(ctx, s.db.Pool)
	const up = `UPDATE idempotency_records SET result=$2 WHERE id=$1 AND result IS NULL`
	tag, err := c.Exec(ctx, up, id, payload)
	if err != nil {
		logx.L().Error("sql.exec_failed",
			zap.String("repo", "idempotency"),
			zap.String("operation", "SetResult"),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var resolved bool
	err = c.QueryRow(ctx, `SELECT result IS NOT NULL FROM idempotency_records WHERE id=$1`, id).Scan(&resolved)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
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
// Unresolved rows are never touched.
func (s *IdempotencyStore) Purge(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	const del = `
      WITH doomed AS (
        SELECT id
        FROM idempotency_records
        WHERE result IS NOT NULL AND created_at < $1
        ORDER BY created_at
        LIMIT $2
        FOR UPDATE SKIP LOCKED
      )
      DELETE FROM idempotency_records r
      USING doomed
      WHERE r.id = doomed.id`
	tag, err := s.db.Pool.Exec(ctx, del, olderThan, limit)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
