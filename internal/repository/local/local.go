// Package local implements repository.Store as a handful of JSON documents
// in a directory, for running without any database.
//
// Documents are keyed the way the offline browser build keys localStorage:
//
//	accomplo_all_users                  every registered user
//	accomplo_profile_<userID>           one profile
//	accomplo_accomplishments_<userID>   a user's records, newest first
//
// Each key is one file, <key>.json. Everything is loaded on open and each
// mutation rewrites only the document it touched.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

const (
	usersKey                 = "accomplo_all_users"
	profileKeyPrefix         = "accomplo_profile_"
	accomplishmentsKeyPrefix = "accomplo_accomplishments_"

	profileIDPrefix = "profile_"
)

var _ repository.Store = (*Store)(nil)

// Store holds every document in memory behind one mutex.
type Store struct {
	dir string

	mu              sync.RWMutex
	users           []model.User
	profiles        map[string]model.Profile          // by user ID
	accomplishments map[string][]model.Accomplishment // by user ID
}

// New opens the store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("local: creating data directory: %w", err)
	}

	s := &Store{
		dir:             dir,
		users:           []model.User{},
		profiles:        make(map[string]model.Profile),
		accomplishments: make(map[string][]model.Accomplishment),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close is a no-op; every write is already on disk.
func (s *Store) Close() error {
	return nil
}

// userDoc is the on-disk form of a user. model.User hides the password
// hash and provider ID from JSON, but this document must keep them.
type userDoc struct {
	model.User
	PasswordHash string `json:"passwordHash"`
	ProviderID   string `json:"providerId"`
}

func (s *Store) load() error {
	var docs []userDoc
	if err := s.readDoc(usersKey, &docs); err != nil {
		return err
	}
	for _, d := range docs {
		u := d.User
		u.PasswordHash = d.PasswordHash
		u.ProviderID = d.ProviderID
		s.users = append(s.users, u)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("local: listing data directory: %w", err)
	}
	for _, e := range entries {
		key, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		switch {
		case strings.HasPrefix(key, profileKeyPrefix):
			var p model.Profile
			if err := s.readDoc(key, &p); err != nil {
				return err
			}
			s.profiles[strings.TrimPrefix(key, profileKeyPrefix)] = p
		case strings.HasPrefix(key, accomplishmentsKeyPrefix):
			var list []model.Accomplishment
			if err := s.readDoc(key, &list); err != nil {
				return err
			}
			s.accomplishments[strings.TrimPrefix(key, accomplishmentsKeyPrefix)] = list
		}
	}
	return nil
}

// readDoc decodes one document into v. A missing document leaves v as is.
func (s *Store) readDoc(key string, v any) error {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("local: reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("local: parsing %s: %w", key, err)
	}
	return nil
}

// writeDoc replaces one document. It writes a temp file and renames it so a
// crash never leaves a half-written document behind.
func (s *Store) writeDoc(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("local: serializing %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("local: writing %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("local: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: writing %s: %w", key, err)
	}
	return nil
}

func (s *Store) writeUsers(users []model.User) error {
	docs := make([]userDoc, len(users))
	for i, u := range users {
		docs[i] = userDoc{User: u, PasswordHash: u.PasswordHash, ProviderID: u.ProviderID}
	}
	return s.writeDoc(usersKey, docs)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// userIDForProfile maps a profile ID back to its owner.
func userIDForProfile(profileID string) (string, bool) {
	return strings.CutPrefix(profileID, profileIDPrefix)
}
