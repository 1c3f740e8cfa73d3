package local

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
)

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}

func (s *Store) createUserLocked(u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if s.indexByEmail(u.Email) >= 0 {
		return apperror.AlreadyExists("User already exists with this email")
	}

	now := time.Now().UTC()
	u.ID = "user_" + uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Provider == "" {
		u.Provider = model.ProviderPassword
	}

	users := append(append([]model.User{}, s.users...), *u)
	if err := s.writeUsers(users); err != nil {
		return err
	}
	s.users = users
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexByEmail(email); i >= 0 {
		u := s.users[i]
		return &u, nil
	}
	return nil, apperror.NotFound("user", email)
}

func (s *Store) UpsertOAuthUser(_ context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.users {
		if existing.Provider != u.Provider || existing.ProviderID != u.ProviderID {
			continue
		}
		if j := s.indexByEmail(u.Email); j >= 0 && j != i {
			return apperror.AlreadyExists("User already exists with this email")
		}
		existing.Email = u.Email
		existing.DisplayName = u.DisplayName
		existing.AvatarURL = u.AvatarURL
		existing.UpdatedAt = time.Now().UTC()
		if err := s.replaceUserLocked(i, existing); err != nil {
			return err
		}
		*u = existing
		return nil
	}

	if i := s.indexByEmail(u.Email); i >= 0 {
		*u = s.users[i]
		return nil
	}
	return s.createUserLocked(u)
}

func (s *Store) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.ID == userID {
			u.PasswordHash = passwordHash
			u.UpdatedAt = time.Now().UTC()
			return s.replaceUserLocked(i, u)
		}
	}
	return apperror.NotFound("user", userID)
}

func (s *Store) replaceUserLocked(i int, u model.User) error {
	users := append([]model.User{}, s.users...)
	users[i] = u
	if err := s.writeUsers(users); err != nil {
		return err
	}
	s.users = users
	return nil
}

func (s *Store) indexByEmail(email string) int {
	for i, u := range s.users {
		if u.Email == email {
			return i
		}
	}
	return -1
}
