package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.AccomplishmentRepository = (*DB)(nil)

var accomplishmentColumns = []string{"id", "profile_id", "content", "type", "category", "month_year", "created_at"}

// CreateAccomplishment inserts a record with a generated ID.
func (db *DB) CreateAccomplishment(ctx context.Context, a *model.Accomplishment) error {
	a.ID = xid.New().String()
	a.CreatedAt = a.CreatedAt.UTC()

	q, args, err := psql.Insert("accomplishments").
		Columns(accomplishmentColumns...).
		Values(a.ID, a.ProfileID, a.Content, string(a.Type), a.Category, a.MonthYear, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: building accomplishment insert: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("postgres: creating accomplishment: %w", err)
	}
	return nil
}

// GetAccomplishment selects one record by ID.
func (db *DB) GetAccomplishment(ctx context.Context, id string) (*model.Accomplishment, error) {
	q, args, err := psql.Select(accomplishmentColumns...).
		From("accomplishments").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: building accomplishment query: %w", err)
	}

	a, err := scanAccomplishment(db.Pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("accomplishment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting accomplishment %s: %w", id, err)
	}
	return a, nil
}

// ListAccomplishments returns a profile's records, newest first.
func (db *DB) ListAccomplishments(ctx context.Context, profileID string) ([]model.Accomplishment, error) {
	q, args, err := psql.Select(accomplishmentColumns...).
		From("accomplishments").
		Where(sq.Eq{"profile_id": profileID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: building list query: %w", err)
	}

	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing accomplishments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Accomplishment, 0)
	for rows.Next() {
		a, err := scanAccomplishment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning accomplishment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating accomplishments: %w", err)
	}
	return out, nil
}

// DeleteAccomplishment removes a record by ID.
func (db *DB) DeleteAccomplishment(ctx context.Context, id string) error {
	const q = `DELETE FROM accomplishments WHERE id = $1`
	tag, err := db.Pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting accomplishment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("accomplishment", id)
	}
	return nil
}

func scanAccomplishment(row pgx.Row) (*model.Accomplishment, error) {
	var (
		a   model.Accomplishment
		typ string
	)
	if err := row.Scan(&a.ID, &a.ProfileID, &a.Content, &typ, &a.Category, &a.MonthYear, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = model.AccomplishmentType(typ)
	return &a, nil
}
