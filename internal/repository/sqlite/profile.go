package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// GetProfileByUserID returns the profile owned by userID, or
// apperror.ErrNotFound if it has not been created yet.
func (db *DB) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p           model.Profile
		displayName sql.NullString
		avatarURL   sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, display_name, avatar_url, created_at, updated_at
		 FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&p.ID, &p.UserID, &displayName, &avatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlite: getting profile for user %s: %w", userID, err)
	}
	p.DisplayName = fromNull(displayName)
	p.AvatarURL = fromNull(avatarURL)
	return &p, nil
}

// CreateProfile inserts a profile. A second profile for the same user is
// rejected with apperror.ErrConflict.
func (db *DB) CreateProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC()
	p.ID = xid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, display_name, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.DisplayName, p.AvatarURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("profile", p.UserID)
		}
		return fmt.Errorf("sqlite: creating profile for user %s: %w", p.UserID, err)
	}
	return nil
}

// UpdateProfile writes the nullable display fields and bumps updated_at.
func (db *DB) UpdateProfile(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET display_name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		p.DisplayName, p.AvatarURL, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", p.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("profile", p.ID)
	}
	return nil
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
