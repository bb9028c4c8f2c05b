package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// OpenTemp opens a migrated database under t.TempDir and closes it on cleanup.
func OpenTemp(t testing.TB) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sentinel.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open temp store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// MustExec runs a raw statement outside any transaction, for test setup.
func (d *DB) MustExec(t testing.TB, query string, args ...any) {
	t.Helper()
	if _, err := d.conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// CountRows returns the number of rows in table.
func (d *DB) CountRows(t testing.TB, table string) int {
	t.Helper()
	var n int
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
