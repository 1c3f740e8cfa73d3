// Package week groups accomplishments into Sunday–Saturday weeks and decides
// which weeks may show their contents.
//
// Everything here is a pure function of its inputs. "Local time" is whatever
// location the caller's now carries: records are converted into that
// location before they are bucketed, and the reveal check reads now's own
// weekday and hour. Nothing is stored; every read recomputes.
package week

import (
	"cmp"
	"slices"
	"time"

	"github.com/sakif/accomplo/internal/model"
)

// RevealHour is the local hour on Sunday from which the current week's
// contents are visible.
const RevealHour = 18

// Bucket is one calendar week of accomplishments.
//
// A locked bucket (IsRevealed false) still carries its accomplishments;
// callers decide how to hide them. Count is always safe to show.
type Bucket struct {
	WeekStart       time.Time
	WeekEnd         time.Time
	Accomplishments []model.Accomplishment
	IsCurrentWeek   bool
	IsRevealed      bool
}

// Count is the number of accomplishments in the week.
func (b Bucket) Count() int {
	return len(b.Accomplishments)
}

// StartOfWeek returns Sunday 00:00:00.000 of the week containing t, in t's
// location.
func StartOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

// EndOfWeek returns the Saturday 23:59:59.999 that closes the week starting
// at weekStart.
func EndOfWeek(weekStart time.Time) time.Time {
	y, m, d := weekStart.Date()
	return time.Date(y, m, d+6, 23, 59, 59, int(999*time.Millisecond), weekStart.Location())
}

// IsRevealTime reports whether now is Sunday at or after RevealHour.
func IsRevealTime(now time.Time) bool {
	return now.Weekday() == time.Sunday && now.Hour() >= RevealHour
}

// IsLocked reports whether a record created at createdAt must hide its
// contents at now: it belongs to now's week and the reveal has not begun.
func IsLocked(createdAt, now time.Time) bool {
	if IsRevealTime(now) {
		return false
	}
	return StartOfWeek(createdAt.In(now.Location())).Equal(StartOfWeek(now))
}

// BucketByWeek groups accomplishments by the week their CreatedAt falls in
// and flags each week as current and/or revealed.
//
// Past weeks are always revealed. The current week is revealed only while
// IsRevealTime(now) holds. Buckets come back newest week first; records
// inside a bucket newest first. An empty input yields an empty slice.
func BucketByWeek(accomplishments []model.Accomplishment, now time.Time) []Bucket {
	loc := now.Location()

	// Keyed by UnixMilli of the week start: time.Time values with equal
	// instants can still differ as map keys.
	groups := make(map[int64]*Bucket)
	for _, a := range accomplishments {
		start := StartOfWeek(a.CreatedAt.In(loc))
		key := start.UnixMilli()
		b, ok := groups[key]
		if !ok {
			b = &Bucket{
				WeekStart: start,
				WeekEnd:   EndOfWeek(start),
			}
			groups[key] = b
		}
		b.Accomplishments = append(b.Accomplishments, a)
	}

	buckets := make([]Bucket, 0, len(groups))
	for _, b := range groups {
		b.IsCurrentWeek = !now.Before(b.WeekStart) && !now.After(b.WeekEnd)
		b.IsRevealed = !b.IsCurrentWeek || IsRevealTime(now)
		slices.SortFunc(b.Accomplishments, newestFirst)
		buckets = append(buckets, *b)
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		return b.WeekStart.Compare(a.WeekStart)
	})
	return buckets
}

// NextReveal returns the next instant at or after now when the week
// containing now shows its contents: today at RevealHour while it is still
// Sunday morning, now itself during the Sunday evening window, and
// otherwise the moment the week rolls over and becomes a past week.
func NextReveal(now time.Time) time.Time {
	start := StartOfWeek(now)
	y, m, d := start.Date()
	evening := time.Date(y, m, d, RevealHour, 0, 0, 0, now.Location())
	switch {
	case now.Before(evening):
		return evening
	case IsRevealTime(now):
		return now
	default:
		return time.Date(y, m, d+7, 0, 0, 0, 0, now.Location())
	}
}

func newestFirst(a, b model.Accomplishment) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
