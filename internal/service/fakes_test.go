package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/auth"
	"github.com/sakif/accomplo/internal/model"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory implementation of the three repository
// interfaces. Set the *Err fields to simulate storage failures.
type fakeStore struct {
	mu              sync.Mutex
	users           map[string]*model.User
	profiles        map[string]*model.Profile // by user ID
	accomplishments []model.Accomplishment
	nextID          int

	createProfileErr error
	listErr          error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		profiles: make(map[string]*model.Profile),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.AlreadyExists("User already exists with this email")
		}
	}
	u.ID = f.id("user")
	if u.Provider == "" {
		u.Provider = model.ProviderPassword
	}
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) UpsertOAuthUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	for _, existing := range f.users {
		if existing.Provider == u.Provider && existing.ProviderID == u.ProviderID {
			existing.Email = u.Email
			existing.DisplayName = u.DisplayName
			existing.AvatarURL = u.AvatarURL
			*u = *existing
			f.mu.Unlock()
			return nil
		}
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			*u = *existing
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.CreateUser(ctx, u)
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) GetProfileByUserID(_ context.Context, userID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	out := *p
	return &out, nil
}

func (f *fakeStore) CreateProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createProfileErr != nil {
		return f.createProfileErr
	}
	if _, ok := f.profiles[p.UserID]; ok {
		return apperror.Conflict("profile", p.UserID)
	}
	p.ID = "profile_" + p.UserID
	stored := *p
	f.profiles[p.UserID] = &stored
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.profiles[p.UserID]
	if !ok || existing.ID != p.ID {
		return apperror.NotFound("profile", p.ID)
	}
	stored := *p
	f.profiles[p.UserID] = &stored
	return nil
}

func (f *fakeStore) CreateAccomplishment(_ context.Context, a *model.Accomplishment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id("acc")
	f.accomplishments = append([]model.Accomplishment{*a}, f.accomplishments...)
	return nil
}

func (f *fakeStore) GetAccomplishment(_ context.Context, id string) (*model.Accomplishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accomplishments {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, apperror.NotFound("accomplishment", id)
}

func (f *fakeStore) ListAccomplishments(_ context.Context, profileID string) ([]model.Accomplishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Accomplishment{}
	for _, a := range f.accomplishments {
		if a.ProfileID == profileID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteAccomplishment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.accomplishments, func(a model.Accomplishment) bool { return a.ID == id })
	if i < 0 {
		return apperror.NotFound("accomplishment", id)
	}
	f.accomplishments = slices.Delete(f.accomplishments, i, i+1)
	return nil
}

// =========================================================================
// FAKE MAILER
// =========================================================================

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

// =========================================================================
// WIRING HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// testAppOrigin is the only origin reset links may point at in tests.
const testAppOrigin = "https://app.example.com"

type testServices struct {
	store    *fakeStore
	mailer   *fakeMailer
	tokens   *auth.TokenService
	revoker  *auth.MemoryRevoker
	auth     *AuthService
	profiles *ProfileService
	accs     *AccomplishmentService
}

func newTestServices(t *testing.T, now time.Time) *testServices {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	ts := &testServices{
		store:   newFakeStore(),
		mailer:  &fakeMailer{},
		tokens:  tokens,
		revoker: auth.NewMemoryRevoker(),
	}
	logger := discardLogger()
	ts.auth = NewAuthService(ts.store, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), ts.revoker, ts.mailer, []string{testAppOrigin}, logger)
	ts.profiles = NewProfileService(ts.store, ts.store, logger)
	ts.accs = NewAccomplishmentService(ts.store, ts.profiles, fixedClock(now), logger)
	return ts
}

// signUp registers a user and fails the test on error.
func (ts *testServices) signUp(t *testing.T, email string) *model.User {
	t.Helper()
	res, err := ts.auth.SignUp(context.Background(), email, "secret1", "")
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return res.User
}
