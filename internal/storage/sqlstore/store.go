package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hr-suite/internal/audit"
	"hr-suite/internal/workflow"
	"hr-suite/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Store implements workflow.Store and audit.Repository on database/sql.
//
// Concurrency:
// - Every save is conditional on the row version read by the caller.
// - Approval decisions are resolved only while still pending.
// - On SQLite the pool holds a single connection; inside InTx only the Tx may be used.
type Store struct {
	reader
	db *sql.DB
}

var (
	_ workflow.Store   = (*Store)(nil)
	_ audit.Repository = (*Store)(nil)
	_ workflow.Tx      = (*txStore)(nil)
)

// New wraps an already opened handle.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{reader: reader{q: db, d: d}, db: db}
}

// Open connects with the dialect's driver. SQLite is pinned to one connection.
func Open(ctx context.Context, d Dialect, dsn string, pool utils.PoolConfig) (*Store, error) {
	if d == SQLite {
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	db, err := utils.OpenDB(ctx, d.DriverName(), dsn, pool)
	if err != nil {
		return nil, err
	}
	return New(db, d), nil
}

// SQLiteDSN enables WAL, foreign keys and a busy timeout for a database file.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.d }

func (s *Store) Close() error { return s.db.Close() }

// InTx commits fn's writes and audit entries together, or neither.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &txStore{reader: reader{q: tx, d: s.d}, tx: tx})
	})
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader runs read queries on either the pool or an open transaction.
type reader struct {
	q queryer
	d Dialect
}

func (r reader) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.d.rebind(q), args...)
}

func (r reader) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.rebind(q), args...)
}

func (r reader) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.rebind(q), args...)
}

// exists is used to tell a missing row from a stale version after a zero-row update.
func (r reader) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := r.queryRow(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type txStore struct {
	reader
	tx *sql.Tx
}

// staleOrMissing maps a zero-row conditional write to NotFound or Conflict.
func (t *txStore) staleOrMissing(ctx context.Context, table, kind, id string) error {
	ok, err := t.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.NotFoundf("%s %s not found", kind, id)
	}
	return workflow.Conflictf("%s %s was modified concurrently", kind, id)
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
