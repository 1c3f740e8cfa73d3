package model

import "time"

// Profile is the per-user tracker record. There is at most one per user and
// it is created lazily the first time the user touches their data.
//
// DisplayName and AvatarURL are nullable: nil means "never set", which the
// JSON encoder renders as null.
type Profile struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"userId"      db:"user_id"`
	DisplayName *string   `json:"displayName" db:"display_name"`
	AvatarURL   *string   `json:"avatarUrl"   db:"avatar_url"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}
