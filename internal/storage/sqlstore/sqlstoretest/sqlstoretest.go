// Package sqlstoretest opens migrated SQLite stores for tests.
package sqlstoretest

import (
	"context"
	"path/filepath"
	"testing"

	"hr-suite/internal/storage/sqlstore"
	"hr-suite/pkg/utils"
)

// New returns a migrated store backed by a file in t.TempDir. It is closed on cleanup.
func New(t testing.TB) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	dsn := sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "workflow.db"))
	st, err := sqlstore.Open(ctx, sqlstore.SQLite, dsn, utils.PoolConfig{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}
