package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// GetProfileByUserID selects the profile owned by userID.
func (db *DB) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	const q = `SELECT id, user_id, display_name, avatar_url, created_at, updated_at FROM profiles WHERE user_id = $1`
	var p model.Profile
	err := db.Pool.QueryRow(ctx, q, userID).
		Scan(&p.ID, &p.UserID, &p.DisplayName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("profile", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting profile for user %s: %w", userID, err)
	}
	return &p, nil
}

// CreateProfile inserts a profile; a second one for the same user conflicts.
func (db *DB) CreateProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC()
	p.ID = xid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	const q = `INSERT INTO profiles (id, user_id, display_name, avatar_url, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := db.Pool.Exec(ctx, q, p.ID, p.UserID, p.DisplayName, p.AvatarURL, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("profile", p.UserID)
	}
	if err != nil {
		return fmt.Errorf("postgres: creating profile: %w", err)
	}
	return nil
}

// UpdateProfile writes the display fields.
func (db *DB) UpdateProfile(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()

	q, args, err := psql.Update("profiles").
		Set("display_name", p.DisplayName).
		Set("avatar_url", p.AvatarURL).
		Set("updated_at", p.UpdatedAt).
		Where(sq.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: building profile update: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres: updating profile %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("profile", p.ID)
	}
	return nil
}
