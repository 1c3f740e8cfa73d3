package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, display_name, avatar_url, provider, provider_id, created_at, updated_at`

// CreateUser inserts a user row with a generated ID.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Provider == "" {
		u.Provider = model.ProviderPassword
	}

	const q = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := db.Pool.Exec(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.AvatarURL, u.Provider, u.ProviderID, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperror.AlreadyExists("User already exists with this email")
	}
	if err != nil {
		return fmt.Errorf("postgres: inserting user: %w", err)
	}
	return nil
}

// GetUserByID selects a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail selects a user by lower-cased email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(db.Pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting user by email: %w", err)
	}
	return u, nil
}

// UpsertOAuthUser resolves an OAuth identity: a known (provider,
// provider_id) is refreshed, a known email is linked, anything else is
// inserted.
func (db *DB) UpsertOAuthUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	const sel = `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_id = $2`
	existing, err := scanUser(db.Pool.QueryRow(ctx, sel, u.Provider, u.ProviderID))
	switch {
	case err == nil:
		existing.Email = u.Email
		existing.DisplayName = u.DisplayName
		existing.AvatarURL = u.AvatarURL
		existing.UpdatedAt = time.Now().UTC()

		const upd = `UPDATE users SET email = $2, display_name = $3, avatar_url = $4, updated_at = $5 WHERE id = $1`
		_, err = db.Pool.Exec(ctx, upd, existing.ID, existing.Email, existing.DisplayName, existing.AvatarURL, existing.UpdatedAt)
		if isUniqueViolation(err) {
			return apperror.AlreadyExists("User already exists with this email")
		}
		if err != nil {
			return fmt.Errorf("postgres: updating oauth user %s: %w", existing.ID, err)
		}
		*u = *existing
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("postgres: looking up %s user: %w", u.Provider, err)
	}

	linked, err := db.GetUserByEmail(ctx, u.Email)
	if err == nil {
		*u = *linked
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	return db.CreateUser(ctx, u)
}

// UpdatePassword replaces the stored bcrypt hash.
func (db *DB) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	tag, err := db.Pool.Exec(ctx, q, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.AvatarURL,
		&u.Provider, &u.ProviderID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
