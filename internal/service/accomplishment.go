package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
	"github.com/sakif/accomplo/internal/week"
)

const (
	MaxContentLength  = 500
	MaxCategoryLength = 100
)

// AccomplishmentService records accomplishments and serves the week view.
// Every operation is scoped to the caller's own profile.
type AccomplishmentService struct {
	repo     repository.AccomplishmentRepository
	profiles *ProfileService
	clock    Clock
	logger   *slog.Logger
}

func NewAccomplishmentService(
	repo repository.AccomplishmentRepository,
	profiles *ProfileService,
	clock Clock,
	logger *slog.Logger,
) *AccomplishmentService {
	return &AccomplishmentService{repo: repo, profiles: profiles, clock: clock, logger: logger}
}

// Create validates and stores a new accomplishment. CreatedAt is the
// service clock's now and MonthYear is derived from it.
func (s *AccomplishmentService) Create(ctx context.Context, userID, content string, typ model.AccomplishmentType, category string) (*model.Accomplishment, error) {
	content = strings.TrimSpace(content)
	category = strings.TrimSpace(category)

	if content == "" {
		return nil, apperror.ValidationFailed("content", "Content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("Content must be %d characters or less", MaxContentLength))
	}
	if !typ.Valid() {
		return nil, apperror.ValidationFailed("type", `Type must be "big" or "small"`)
	}
	if category == "" {
		return nil, apperror.ValidationFailed("category", "Category is required")
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return nil, apperror.ValidationFailed("category",
			fmt.Sprintf("Category must be %d characters or less", MaxCategoryLength))
	}

	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	a := &model.Accomplishment{
		Content:   content,
		Type:      typ,
		Category:  category,
		MonthYear: model.MonthYear(now),
		CreatedAt: now,
		ProfileID: profile.ID,
	}
	if err := s.repo.CreateAccomplishment(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to create accomplishment",
			slog.String("profileID", profile.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/accomplishment: creating: %w", err)
	}

	s.logger.InfoContext(ctx, "accomplishment created",
		slog.String("id", a.ID),
		slog.String("profileID", profile.ID),
		slog.String("type", string(a.Type)),
	)
	return a, nil
}

// List returns the user's accomplishments as seen from loc, newest first.
// Records of the current week are left out until it is revealed; Weeks is
// the way to see how many there are. A nil loc means the server's local
// zone.
func (s *AccomplishmentService) List(ctx context.Context, userID string, loc *time.Location) ([]model.Accomplishment, error) {
	list, err := s.all(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.nowIn(loc)
	visible := make([]model.Accomplishment, 0, len(list))
	for _, a := range list {
		if !week.IsLocked(a.CreatedAt, now) {
			visible = append(visible, a)
		}
	}
	if hidden := len(list) - len(visible); hidden > 0 {
		s.logger.DebugContext(ctx, "locked accomplishments withheld from list",
			slog.String("userID", userID),
			slog.Int("hidden", hidden),
		)
	}
	return visible, nil
}

func (s *AccomplishmentService) nowIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return s.clock.now().In(loc)
}

// all returns every accomplishment of the user, locked or not.
func (s *AccomplishmentService) all(ctx context.Context, userID string) ([]model.Accomplishment, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	list, err := s.repo.ListAccomplishments(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("service/accomplishment: listing: %w", err)
	}
	return list, nil
}

// Delete removes one of the user's accomplishments. A record owned by
// another profile is reported as not found, exactly like a missing one.
func (s *AccomplishmentService) Delete(ctx context.Context, userID, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "Accomplishment ID is required")
	}

	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	a, err := s.repo.GetAccomplishment(ctx, id)
	if err != nil {
		return err
	}
	if a.ProfileID != profile.ID {
		s.logger.WarnContext(ctx, "delete of foreign accomplishment refused",
			slog.String("id", id),
			slog.String("profileID", profile.ID),
		)
		return apperror.NotFound("accomplishment", id)
	}

	if err := s.repo.DeleteAccomplishment(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/accomplishment: deleting %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "accomplishment deleted", slog.String("id", id))
	return nil
}

// WeekView is the bucketed accomplishment history as seen at Now.
type WeekView struct {
	Now          time.Time
	Weeks        []week.Bucket
	NextRevealAt time.Time
}

// Weeks buckets the user's accomplishments into weeks as seen from loc.
// A nil loc means the server's local zone.
func (s *AccomplishmentService) Weeks(ctx context.Context, userID string, loc *time.Location) (*WeekView, error) {
	list, err := s.all(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.nowIn(loc)
	return &WeekView{
		Now:          now,
		Weeks:        week.BucketByWeek(list, now),
		NextRevealAt: week.NextReveal(now),
	}, nil
}
