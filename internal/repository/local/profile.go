package local

import (
	"context"
	"time"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
)

func (s *Store) GetProfileByUserID(_ context.Context, userID string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	return &p, nil
}

// CreateProfile stores a profile with ID "profile_<userID>".
func (s *Store) CreateProfile(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.UserID]; ok {
		return apperror.Conflict("profile", p.UserID)
	}

	now := time.Now().UTC()
	p.ID = profileIDPrefix + p.UserID
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.writeDoc(profileKeyPrefix+p.UserID, p); err != nil {
		return err
	}
	s.profiles[p.UserID] = *p
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := userIDForProfile(p.ID)
	existing, found := s.profiles[userID]
	if !ok || !found {
		return apperror.NotFound("profile", p.ID)
	}

	existing.DisplayName = p.DisplayName
	existing.AvatarURL = p.AvatarURL
	existing.UpdatedAt = time.Now().UTC()
	if err := s.writeDoc(profileKeyPrefix+userID, existing); err != nil {
		return err
	}
	s.profiles[userID] = existing
	*p = existing
	return nil
}
