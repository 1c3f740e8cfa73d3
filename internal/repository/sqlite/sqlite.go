// Package sqlite implements repository.Store on an embedded SQLite file.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain. Use ":memory:" for a throwaway database in tests.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements every repository
// interface. New creates it, Close releases it.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/accomplo.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so keep exactly one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// sql.Open is lazy; Ping forces a real connection so a bad path fails here.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Accomplishments cascade
	// away with their profile, so we need them on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			display_name  TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT 'password',
			provider_id   TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider
			ON users(provider, provider_id) WHERE provider_id <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// user_id is UNIQUE: at most one profile per user.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			display_name TEXT,
			avatar_url   TEXT,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accomplishments (
			id         TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			content    TEXT NOT NULL,
			type       TEXT NOT NULL CHECK (type IN ('big', 'small')),
			category   TEXT NOT NULL,
			month_year TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_accomplishments_profile_created
			ON accomplishments(profile_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating accomplishments table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
