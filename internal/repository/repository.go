// Package repository declares the persistence boundary.
//
// The services depend only on these interfaces. Three interchangeable
// implementations live in sub-packages and are picked by configuration:
//
//	sqlite   : embedded relational store (default)
//	postgres : remote relational tables
//	local    : offline JSON documents keyed like browser storage
//
// Implementations generate ids and timestamps, translate "no row" into
// apperror.NotFound and duplicate emails into apperror.Conflict.
package repository

import (
	"context"

	"github.com/sakif/accomplo/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertOAuthUser inserts or refreshes a user keyed by
	// (user.Provider, user.ProviderID) and fills in ID and timestamps.
	UpsertOAuthUser(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type ProfileRepository interface {
	GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error)
	CreateProfile(ctx context.Context, profile *model.Profile) error
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

type AccomplishmentRepository interface {
	// CreateAccomplishment assigns the ID. CreatedAt and MonthYear are set by
	// the caller and stored verbatim.
	CreateAccomplishment(ctx context.Context, a *model.Accomplishment) error
	GetAccomplishment(ctx context.Context, id string) (*model.Accomplishment, error)
	// ListAccomplishments returns every record of a profile, newest first.
	ListAccomplishments(ctx context.Context, profileID string) ([]model.Accomplishment, error)
	DeleteAccomplishment(ctx context.Context, id string) error
}

// Store is the full capability set one backend provides.
type Store interface {
	UserRepository
	ProfileRepository
	AccomplishmentRepository
	Close() error
}
