package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, display_name, avatar_url, provider, provider_id, created_at, updated_at`

// CreateUser inserts a password user. The email is stored lower-cased and
// must be unique; a clash returns apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Provider == "" {
		user.Provider = model.ProviderPassword
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.AvatarURL,
		user.Provider,
		user.ProviderID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.AlreadyExists("User already exists with this email")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpsertOAuthUser resolves an OAuth identity to a user row.
//
// Lookup order:
//  1. (provider, provider_id) : returning user; refresh email/name/avatar
//  2. email : an existing account with the same address; link to it as is
//  3. neither : INSERT a new user
//
// On return *user holds the canonical stored record.
func (db *DB) UpsertOAuthUser(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	existing, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`,
		user.Provider, user.ProviderID,
	))
	switch {
	case err == nil:
		existing.Email = user.Email
		existing.DisplayName = user.DisplayName
		existing.AvatarURL = user.AvatarURL
		existing.UpdatedAt = time.Now().UTC()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET email = ?, display_name = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			existing.Email, existing.DisplayName, existing.AvatarURL, existing.UpdatedAt, existing.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.AlreadyExists("User already exists with this email")
			}
			return fmt.Errorf("sqlite: updating oauth user %s: %w", existing.ID, err)
		}
		*user = *existing
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("sqlite: looking up %s user %s: %w", user.Provider, user.ProviderID, err)
	}

	linked, err := db.GetUserByEmail(ctx, user.Email)
	if err == nil {
		*user = *linked
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	return db.CreateUser(ctx, user)
}

// UpdatePassword replaces a user's bcrypt hash.
func (db *DB) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password for %s: %w", userID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Provider,
		&u.ProviderID,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
