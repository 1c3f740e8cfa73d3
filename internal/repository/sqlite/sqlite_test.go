package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
)

// newTestDB opens a fresh in-memory database. Each test gets its own, and
// t.Cleanup closes it when the test (or subtest) finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, PasswordHash: "hash", DisplayName: "tester"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestProfile(t *testing.T, db *DB, userID string) *model.Profile {
	t.Helper()
	p := &model.Profile{UserID: userID}
	if err := db.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("failed to create test profile: %v", err)
	}
	return p
}

func createTestAccomplishment(t *testing.T, db *DB, profileID, content string, createdAt time.Time) *model.Accomplishment {
	t.Helper()
	a := &model.Accomplishment{
		ProfileID: profileID,
		Content:   content,
		Type:      model.TypeSmall,
		Category:  "work",
		MonthYear: model.MonthYear(createdAt),
		CreatedAt: createdAt,
	}
	if err := db.CreateAccomplishment(context.Background(), a); err != nil {
		t.Fatalf("failed to create test accomplishment: %v", err)
	}
	return a
}

func TestNew_FileDatabaseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accomplo.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	user := createTestUser(t, db, "persist@example.com")
	db.Close()

	// Migrations must be idempotent: opening again must not fail.
	db, err = New(path)
	if err != nil {
		t.Fatalf("New() second open error = %v", err)
	}
	defer db.Close()

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Email != "persist@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "persist@example.com")
	}
}

// =========================================================================
// USER TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "  Ada@Example.COM ", PasswordHash: "hash"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() did not set ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set CreatedAt")
	}
	if user.Email != "ada@example.com" {
		t.Errorf("Email = %q, want lower-cased", user.Email)
	}
	if user.Provider != model.ProviderPassword {
		t.Errorf("Provider = %q, want %q", user.Provider, model.ProviderPassword)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "dup@example.com")

	err := db.CreateUser(context.Background(), &model.User{Email: "DUP@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "grace@example.com")

	got, err := db.GetUserByEmail(context.Background(), "Grace@Example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("ID = %q, want %q", got.ID, user.ID)
	}
	if got.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "hash")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
	_, err = db.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertOAuthUser(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a new identity", func(t *testing.T) {
		db := newTestDB(t)
		u := &model.User{Email: "oauth@example.com", Provider: model.ProviderGoogle, ProviderID: "g-1", DisplayName: "O"}
		if err := db.UpsertOAuthUser(ctx, u); err != nil {
			t.Fatalf("UpsertOAuthUser() error = %v", err)
		}
		if u.ID == "" {
			t.Fatal("UpsertOAuthUser() did not set ID")
		}
	})

	t.Run("refreshes a returning identity", func(t *testing.T) {
		db := newTestDB(t)
		first := &model.User{Email: "old@example.com", Provider: model.ProviderGitHub, ProviderID: "42", DisplayName: "Old"}
		if err := db.UpsertOAuthUser(ctx, first); err != nil {
			t.Fatalf("first upsert: %v", err)
		}

		second := &model.User{Email: "new@example.com", Provider: model.ProviderGitHub, ProviderID: "42", DisplayName: "New"}
		if err := db.UpsertOAuthUser(ctx, second); err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("ID = %q, want %q", second.ID, first.ID)
		}

		got, err := db.GetUserByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetUserByID() error = %v", err)
		}
		if got.Email != "new@example.com" || got.DisplayName != "New" {
			t.Errorf("got %+v, want refreshed email and name", got)
		}
	})

	t.Run("links to an existing password account by email", func(t *testing.T) {
		db := newTestDB(t)
		existing := createTestUser(t, db, "same@example.com")

		u := &model.User{Email: "Same@example.com", Provider: model.ProviderFacebook, ProviderID: "fb-9"}
		if err := db.UpsertOAuthUser(ctx, u); err != nil {
			t.Fatalf("UpsertOAuthUser() error = %v", err)
		}
		if u.ID != existing.ID {
			t.Errorf("ID = %q, want linked %q", u.ID, existing.ID)
		}
	})
}

func TestUpdatePassword(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "pw@example.com")

	if err := db.UpdatePassword(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	got, _ := db.GetUserByID(ctx, user.ID)
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "new-hash")
	}

	if err := db.UpdatePassword(ctx, "missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdatePassword(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestProfile_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "p@example.com")

	_, err := db.GetProfileByUserID(ctx, user.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetProfileByUserID() before create error = %v, want ErrNotFound", err)
	}

	created := createTestProfile(t, db, user.ID)
	got, err := db.GetProfileByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetProfileByUserID() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
	if got.DisplayName != nil || got.AvatarURL != nil {
		t.Errorf("nullable fields = %v/%v, want nil", got.DisplayName, got.AvatarURL)
	}
}

func TestProfile_OnePerUser(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "one@example.com")
	createTestProfile(t, db, user.ID)

	err := db.CreateProfile(context.Background(), &model.Profile{UserID: user.ID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateProfile() second error = %v, want ErrConflict", err)
	}
}

func TestProfile_Update(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "u@example.com")
	p := createTestProfile(t, db, user.ID)

	name := "Ada"
	p.DisplayName = &name
	if err := db.UpdateProfile(ctx, p); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	got, _ := db.GetProfileByUserID(ctx, user.ID)
	if got.DisplayName == nil || *got.DisplayName != "Ada" {
		t.Errorf("DisplayName = %v, want Ada", got.DisplayName)
	}
	if got.AvatarURL != nil {
		t.Errorf("AvatarURL = %v, want nil", *got.AvatarURL)
	}

	err := db.UpdateProfile(ctx, &model.Profile{ID: "missing"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateProfile(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ACCOMPLISHMENT TESTS
// =========================================================================

func TestAccomplishment_CreateGetDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "a@example.com")
	p := createTestProfile(t, db, user.ID)

	created := createTestAccomplishment(t, db, p.ID, "shipped it", time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	if created.ID == "" {
		t.Fatal("CreateAccomplishment() did not set ID")
	}

	got, err := db.GetAccomplishment(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAccomplishment() error = %v", err)
	}
	if got.Content != "shipped it" || got.Type != model.TypeSmall || got.MonthYear != "2026-10" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}

	if err := db.DeleteAccomplishment(ctx, created.ID); err != nil {
		t.Fatalf("DeleteAccomplishment() error = %v", err)
	}
	if _, err := db.GetAccomplishment(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccomplishment() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteAccomplishment(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteAccomplishment() twice error = %v, want ErrNotFound", err)
	}
}

func TestListAccomplishments_NewestFirstAndScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestProfile(t, db, createTestUser(t, db, "alice@example.com").ID)
	bob := createTestProfile(t, db, createTestUser(t, db, "bob@example.com").ID)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	createTestAccomplishment(t, db, alice.ID, "first", base)
	createTestAccomplishment(t, db, alice.ID, "third", base.Add(48*time.Hour))
	createTestAccomplishment(t, db, alice.ID, "second", base.Add(24*time.Hour))
	createTestAccomplishment(t, db, bob.ID, "bob's", base)

	got, err := db.ListAccomplishments(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListAccomplishments() error = %v", err)
	}
	want := []string{"third", "second", "first"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestListAccomplishments_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)

	got, err := db.ListAccomplishments(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListAccomplishments() error = %v", err)
	}
	if got == nil {
		t.Error("ListAccomplishments() = nil, want empty slice")
	}
}

func TestCreateAccomplishment_UnknownProfile(t *testing.T) {
	db := newTestDB(t)

	a := &model.Accomplishment{
		ProfileID: "missing",
		Content:   "x",
		Type:      model.TypeBig,
		Category:  "c",
		MonthYear: "2026-10",
		CreatedAt: time.Now(),
	}
	if err := db.CreateAccomplishment(context.Background(), a); err == nil {
		t.Error("CreateAccomplishment() with unknown profile succeeded, want foreign key error")
	}
}
