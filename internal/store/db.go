package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ValueSentinel/internal/model"
)

// ErrConflict is returned when a write hits a unique constraint.
var ErrConflict = errors.New("conflict")

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every query can run inside
// or outside a caller-controlled transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs user-scoped statements against a DBTX.
type Queries struct {
	db DBTX
}

// New wraps a connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// DB owns the SQLite connection pool.
type DB struct {
	conn *sql.DB
	log  zerolog.Logger
}

// Open opens (or creates) the SQLite database and runs migrations.
// Write transactions take the database lock at BEGIN (_txlock=immediate), so a
// read-check-write sequence inside InTx cannot interleave with another writer.
func Open(path string, log zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{conn: conn, log: log.With().Str("component", "store").Logger()}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	d.log.Info().Str("path", path).Msg("sqlite store opened")
	return d, nil
}

// Queries returns a Queries bound to the pool (autocommit).
func (d *DB) Queries() *Queries {
	return New(d.conn)
}

// InTx runs fn inside one transaction. Any error from fn rolls everything back.
func (d *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(New(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the pool.
func (d *DB) Close() error {
	d.log.Info().Msg("closing sqlite store")
	return d.conn.Close()
}

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          INTEGER NOT NULL,
			code             TEXT NOT NULL,
			name             TEXT NOT NULL,
			market           TEXT NOT NULL,
			industry         TEXT NOT NULL DEFAULT '',
			tags             TEXT NOT NULL DEFAULT '',
			competence_score INTEGER NOT NULL DEFAULT 3,
			ai_score         INTEGER,
			ai_summary       TEXT NOT NULL DEFAULT '',
			notes            TEXT NOT NULL DEFAULT '',
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL,
			UNIQUE (user_id, code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_industry ON assets(user_id, industry)`,

		`CREATE TABLE IF NOT EXISTS thresholds (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL,
			asset_id   INTEGER NOT NULL UNIQUE REFERENCES assets(id) ON DELETE CASCADE,
			buy_pb     REAL NOT NULL,
			add_pb     REAL,
			sell_pb    REAL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS valuations (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id              INTEGER NOT NULL,
			asset_id             INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			date                 TEXT NOT NULL,
			pb                   REAL,
			price                REAL,
			book_value_per_share REAL,
			source               TEXT NOT NULL DEFAULT '',
			fetched_at           INTEGER NOT NULL,
			UNIQUE (asset_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      INTEGER NOT NULL,
			asset_id     INTEGER NOT NULL UNIQUE REFERENCES assets(id) ON DELETE CASCADE,
			position_pct REAL NOT NULL DEFAULT 0,
			shares       INTEGER NOT NULL DEFAULT 0,
			avg_cost     REAL,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id)`,

		`CREATE TABLE IF NOT EXISTS portfolios (
			user_id     INTEGER PRIMARY KEY,
			total_asset REAL NOT NULL DEFAULT 0,
			cash        REAL NOT NULL DEFAULT 0,
			updated_at  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id             INTEGER NOT NULL,
			asset_id            INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			date                TEXT NOT NULL,
			signal_type         TEXT NOT NULL,
			pb                  REAL NOT NULL,
			triggered_threshold REAL NOT NULL,
			explanation         TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL DEFAULT 'OPEN',
			created_at          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_user_date ON signals(user_id, date)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_signals_open_day ON signals(user_id, asset_id, date) WHERE status = 'OPEN'`,

		`CREATE TABLE IF NOT EXISTS actions (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id               INTEGER NOT NULL,
			asset_id              INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			signal_id             INTEGER REFERENCES signals(id) ON DELETE SET NULL,
			action_date           TEXT NOT NULL,
			action_type           TEXT NOT NULL,
			planned_position_pct  REAL NOT NULL DEFAULT 0,
			executed_position_pct REAL NOT NULL DEFAULT 0,
			executed_amount       REAL NOT NULL DEFAULT 0,
			shares                INTEGER,
			price                 REAL,
			reason                TEXT NOT NULL,
			emotion               TEXT NOT NULL DEFAULT '',
			rule_compliance       INTEGER NOT NULL DEFAULT 1,
			compliance_note       TEXT NOT NULL DEFAULT '',
			created_at            INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_user_date ON actions(user_id, action_date)`,

		`CREATE TABLE IF NOT EXISTS costs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id INTEGER NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
			fee       REAL NOT NULL DEFAULT 0,
			tax       REAL NOT NULL DEFAULT 0,
			slippage  REAL NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS industry_configs (
			user_id                  INTEGER NOT NULL,
			industry                 TEXT NOT NULL,
			default_buy_pb           REAL NOT NULL,
			default_add_pb           REAL,
			default_sell_pb          REAL,
			recommended_max_position REAL,
			cyclical                 INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, industry)
		)`,
	}

	for _, s := range stmts {
		if _, err := d.conn.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(s)[:40], err)
		}
	}
	return nil
}

// mapErr translates driver errors into package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(v int64) time.Time { return time.Unix(v, 0) }

func dateString(t time.Time) string { return t.Format(model.DateLayout) }

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(model.DateLayout, s, time.Local)
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
