package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

const (
	MaxDisplayNameLength = 100
	MaxAvatarURLLength   = 2048
)

// ProfileService manages the per-user tracker profile.
type ProfileService struct {
	profiles repository.ProfileRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, users repository.UserRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, users: users, logger: logger}
}

// GetOrCreate returns the user's profile, creating it on first access with
// the user's display name and avatar.
func (s *ProfileService) GetOrCreate(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/profile: fetching profile: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching owner: %w", err)
	}

	p = &model.Profile{
		UserID:      userID,
		DisplayName: nonEmpty(user.DisplayName),
		AvatarURL:   nonEmpty(user.AvatarURL),
	}
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		// Two first requests raced; the other one won.
		if errors.Is(err, apperror.ErrConflict) {
			return s.profiles.GetProfileByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("service/profile: creating profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile created", slog.String("userID", userID), slog.String("profileID", p.ID))
	return p, nil
}

// Update changes the display fields. A nil argument leaves the field as is;
// an empty string clears it.
func (s *ProfileService) Update(ctx context.Context, userID string, displayName, avatarURL *string) (*model.Profile, error) {
	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if utf8.RuneCountInString(name) > MaxDisplayNameLength {
			return nil, apperror.ValidationFailed("displayName",
				fmt.Sprintf("Display name must be %d characters or less", MaxDisplayNameLength))
		}
		displayName = &name
	}
	if avatarURL != nil {
		raw := strings.TrimSpace(*avatarURL)
		if raw != "" {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || len(raw) > MaxAvatarURLLength {
				return nil, apperror.ValidationFailed("avatarUrl", "Avatar URL must be an absolute http(s) URL")
			}
		}
		avatarURL = &raw
	}

	p, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		p.DisplayName = nonEmpty(*displayName)
	}
	if avatarURL != nil {
		p.AvatarURL = nonEmpty(*avatarURL)
	}

	if err := s.profiles.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service/profile: updating profile: %w", err)
	}
	return p, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
