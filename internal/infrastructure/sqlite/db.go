package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"receipts-service/internal/idempotency"
	infraconfig "receipts-service/internal/infrastructure/config"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so that stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var errNoTx = errors.New("sqlite: operation requires a transaction")

// DB wraps a SQLite database opened in WAL mode through two pools. SQL serves
// reads and autocommit writes with the long busy timeout. Transactions from Do
// start with BEGIN IMMEDIATE on a second pool whose busy timeout is short, so a
// writer blocked behind another transaction gives up quickly with
// idempotency.ErrStoreBusy instead of stalling for the whole owner's run.
type DB struct {
	SQL *sql.DB
	tx  *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := openPool(ctx, path, infraconfig.DefaultSQLiteBusy)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	tx, err := openPool(ctx, path, infraconfig.DefaultSQLiteTxBusy)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{SQL: db, tx: tx}, nil
}

func openPool(ctx context.Context, path string, busy time.Duration) (*sql.DB, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", fmt.Sprint(busy.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error                   { return errors.Join(d.tx.Close(), d.SQL.Close()) }
func (d *DB) Ping(ctx context.Context) error { return d.SQL.PingContext(ctx) }

type txKey struct{}

func txFromCtx(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *DB) conn(ctx context.Context) execer {
	if tx := txFromCtx(ctx); tx != nil {
		return tx
	}
	return d.SQL
}

// Do runs fn in a transaction. A context that already carries one joins it.
// When another writer holds the database past the short busy timeout, Do
// returns an error matching idempotency.ErrStoreBusy without calling fn.
func (d *DB) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromCtx(ctx) != nil {
		return fn(ctx)
	}
	tx, err := d.tx.BeginTx(ctx, nil)
	if isBusy(err) {
		return fmt.Errorf("%w: %w", idempotency.ErrStoreBusy, err)
	}
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
