package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.AccomplishmentRepository = (*DB)(nil)

// CreateAccomplishment inserts a record. The ID is generated here; CreatedAt
// and MonthYear come from the caller and are stored as given (CreatedAt is
// normalised to UTC so that the text column sorts chronologically).
func (db *DB) CreateAccomplishment(ctx context.Context, a *model.Accomplishment) error {
	a.ID = xid.New().String()
	a.CreatedAt = a.CreatedAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accomplishments (id, profile_id, content, type, category, month_year, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ProfileID,
		a.Content,
		string(a.Type),
		a.Category,
		a.MonthYear,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating accomplishment: %w", err)
	}
	return nil
}

// GetAccomplishment retrieves one record by ID.
func (db *DB) GetAccomplishment(ctx context.Context, id string) (*model.Accomplishment, error) {
	var a model.Accomplishment
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, profile_id, content, type, category, month_year, created_at
		 FROM accomplishments WHERE id = ?`,
		id,
	).Scan(&a.ID, &a.ProfileID, &a.Content, &a.Type, &a.Category, &a.MonthYear, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("accomplishment", id)
		}
		return nil, fmt.Errorf("sqlite: getting accomplishment %s: %w", id, err)
	}
	return &a, nil
}

// ListAccomplishments returns all of a profile's records, newest first.
// There is no pagination: the week view needs the whole collection.
func (db *DB) ListAccomplishments(ctx context.Context, profileID string) ([]model.Accomplishment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, profile_id, content, type, category, month_year, created_at
		 FROM accomplishments
		 WHERE profile_id = ?
		 ORDER BY created_at DESC, id DESC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing accomplishments: %w", err)
	}
	defer rows.Close()

	accomplishments := make([]model.Accomplishment, 0)
	for rows.Next() {
		var a model.Accomplishment
		if err := rows.Scan(
			&a.ID, &a.ProfileID, &a.Content, &a.Type, &a.Category, &a.MonthYear, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning accomplishment row: %w", err)
		}
		accomplishments = append(accomplishments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating accomplishments: %w", err)
	}

	return accomplishments, nil
}

// DeleteAccomplishment removes a record by ID.
func (db *DB) DeleteAccomplishment(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM accomplishments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting accomplishment %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("accomplishment", id)
	}
	return nil
}
