// Package sqlite implements the repository interfaces on top of database/sql.
//
// WHY SQLITE?
// A link-in-bio page is read-heavy and tiny per user. One embedded database
// file is plenty for a single-server deployment, and ":memory:" gives every
// test its own throwaway database. Remote libsql (Turso) URLs are accepted
// too; they speak the same SQL dialect.
//
// TIMESTAMPS:
// Every time column is an INTEGER holding unix milliseconds in UTC. Integer
// comparison makes analytics windows exact, and strftime(..., 'unixepoch')
// buckets them into calendar days without any driver-specific time parsing.
//
// SINGLE WRITER:
// SQLite serializes writers. A local database is opened with exactly one
// pooled connection so a transaction never waits on another connection of
// the same process. Code running inside a transaction must only use the tx.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // registers the "libsql" driver
)

// DB wraps a sql.DB connection pool and implements every repository
// interface in the parent package.
type DB struct {
	conn *sql.DB
}

// New opens the database at dsn and applies all pending migrations.
//
// dsn examples:
//   - "data/linkbio.db"               → local file
//   - ":memory:"                      → in-memory database (tests)
//   - "libsql://my-db.turso.io?authToken=..." → remote libsql
func New(dsn string) (*DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Open connects without touching the schema. The ctl tool uses it to run
// migrations step by step.
func Open(dsn string) (*DB, error) {
	driver, source := driverFor(dsn)

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if driver == "sqlite" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// driverFor picks the database/sql driver for a DSN. Local SQLite gets its
// pragmas through the DSN so they apply to every connection the pool opens.
func driverFor(dsn string) (driver, source string) {
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") || strings.HasPrefix(dsn, "https://") {
		return "libsql", dsn
	}

	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dsn == ":memory:" {
		return "sqlite", "file::memory:?" + pragmas
	}
	if strings.Contains(dsn, "?") {
		return "sqlite", dsn + "&" + pragmas + "&_pragma=journal_mode(WAL)"
	}
	return "sqlite", "file:" + dsn + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// on any error (including a panic propagating through fn).
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// toMillis converts a time to the stored representation.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullMillis maps an optional time to a nullable column value.
func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

// isUniqueViolation recognises UNIQUE / PRIMARY KEY failures from both the
// local driver (typed error code) and libsql (message text only).
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
