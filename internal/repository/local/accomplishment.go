package local

import (
	"context"
	"slices"

	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
)

// CreateAccomplishment prepends the record to its owner's list, so the
// stored document stays newest first.
func (s *Store) CreateAccomplishment(_ context.Context, a *model.Accomplishment) error {
	userID, ok := userIDForProfile(a.ProfileID)
	if !ok {
		return apperror.NotFound("profile", a.ProfileID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.profiles[userID]; !found {
		return apperror.NotFound("profile", a.ProfileID)
	}

	a.ID = "acc_" + xid.New().String()
	a.CreatedAt = a.CreatedAt.UTC()

	list := append([]model.Accomplishment{*a}, s.accomplishments[userID]...)
	if err := s.writeDoc(accomplishmentsKeyPrefix+userID, list); err != nil {
		return err
	}
	s.accomplishments[userID] = list
	return nil
}

func (s *Store) GetAccomplishment(_ context.Context, id string) (*model.Accomplishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, list := range s.accomplishments {
		for _, a := range list {
			if a.ID == id {
				return &a, nil
			}
		}
	}
	return nil, apperror.NotFound("accomplishment", id)
}

func (s *Store) ListAccomplishments(_ context.Context, profileID string) ([]model.Accomplishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, _ := userIDForProfile(profileID)
	list := slices.Clone(s.accomplishments[userID])
	if list == nil {
		list = []model.Accomplishment{}
	}
	return list, nil
}

func (s *Store) DeleteAccomplishment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, list := range s.accomplishments {
		i := slices.IndexFunc(list, func(a model.Accomplishment) bool { return a.ID == id })
		if i < 0 {
			continue
		}
		next := slices.Delete(slices.Clone(list), i, i+1)
		if err := s.writeDoc(accomplishmentsKeyPrefix+userID, next); err != nil {
			return err
		}
		s.accomplishments[userID] = next
		return nil
	}
	return apperror.NotFound("accomplishment", id)
}
