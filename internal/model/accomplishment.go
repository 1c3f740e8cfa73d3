package model

import "time"

// AccomplishmentType classifies an accomplishment. It affects nothing but
// presentation.
type AccomplishmentType string

const (
	TypeBig   AccomplishmentType = "big"
	TypeSmall AccomplishmentType = "small"
)

// Valid reports whether t is one of the known types.
func (t AccomplishmentType) Valid() bool {
	return t == TypeBig || t == TypeSmall
}

// Accomplishment is a single recorded achievement. Records are append-only:
// CreatedAt is stamped once at insert and drives week bucketing.
type Accomplishment struct {
	ID        string             `json:"id"        db:"id"`
	Content   string             `json:"content"   db:"content"`
	Type      AccomplishmentType `json:"type"      db:"type"`
	Category  string             `json:"category"  db:"category"`
	MonthYear string             `json:"monthYear" db:"month_year"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
	ProfileID string             `json:"profileId" db:"profile_id"`
}

// MonthYear returns the YYYY-MM label for an instant: the first seven
// characters of its ISO-8601 form in UTC.
func MonthYear(t time.Time) string {
	return t.UTC().Format("2006-01")
}
