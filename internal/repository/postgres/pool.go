// Package postgres implements repository.Store on PostgreSQL through a pgx
// connection pool. The schema is owned by the goose migrations in
// /migrations; run Migrate before serving traffic.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.Store = (*DB)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PgxPool is the subset of *pgxpool.Pool the repositories use. It is also
// satisfied by pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB wraps the pool and implements every repository interface.
type DB struct{ Pool PgxPool }

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
