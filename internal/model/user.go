// Package model defines the data structures used throughout the application.
package model

import "time"

// Identity providers a User can come from.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderGitHub   = "github"
)

// User is the identity/auth account. It is distinct from the Profile, which
// is the tracker-side record accomplishments hang off.
//
// Password users have a bcrypt PasswordHash and Provider "password".
// OAuth users have an empty hash and are looked up by (Provider, ProviderID).
// The email is stored lower-cased and is unique across all providers.
type User struct {
	ID           string    `json:"id"           db:"id"`
	Email        string    `json:"email"        db:"email"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	DisplayName  string    `json:"displayName"  db:"display_name"`
	AvatarURL    string    `json:"avatarUrl"    db:"avatar_url"`
	Provider     string    `json:"provider"     db:"provider"`
	ProviderID   string    `json:"-"            db:"provider_id"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}
