package auth

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"localchat/models"
	"localchat/store"
)

func setupTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ss, err := store.NewSessionStore(dir)
	if err != nil {
		t.Fatalf("Failed to create session store: %v", err)
	}

	svc, err := New(st, ss)
	if err != nil {
		t.Fatalf("Failed to create auth service: %v", err)
	}

	return svc, st
}

func TestSignup(t *testing.T) {
	svc, st := setupTestService(t)

	user, err := svc.Signup("alice", "pw1")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if user.Username != "alice" {
		t.Errorf("Expected username alice, got %q", user.Username)
	}
	if !strings.HasPrefix(user.ID, "user_") {
		t.Errorf("Expected user_ id prefix, got %q", user.ID)
	}
	if user.Avatar == "" {
		t.Error("Expected an avatar to be assigned")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw1")) != nil {
		t.Error("Stored hash does not verify against the password")
	}
	if user.PasswordHash == "pw1" {
		t.Error("Password stored in the clear")
	}

	// Signup establishes the session.
	current := svc.CurrentUser()
	if current == nil || current.ID != user.ID {
		t.Errorf("Expected session for %q, got %+v", user.ID, current)
	}

	// Roster persisted.
	stored, err := st.Users()
	if err != nil {
		t.Fatalf("Failed to read roster: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != user.ID {
		t.Errorf("Expected persisted roster of 1, got %+v", stored)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	svc, st := setupTestService(t)

	if _, err := svc.Signup("alice", "pw1"); err != nil {
		t.Fatalf("First signup failed: %v", err)
	}

	_, err := svc.Signup("alice", "pw2")
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("Expected ErrDuplicateUsername, got %v", err)
	}

	stored, err := st.Users()
	if err != nil {
		t.Fatalf("Failed to read roster: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("Roster length changed on failed signup: %d", len(stored))
	}
}

func TestSignupUsernameIsCaseSensitive(t *testing.T) {
	svc, _ := setupTestService(t)

	if _, err := svc.Signup("alice", "pw1"); err != nil {
		t.Fatalf("First signup failed: %v", err)
	}
	if _, err := svc.Signup("Alice", "pw2"); err != nil {
		t.Errorf("Expected exact-match uniqueness, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := setupTestService(t)

	created, err := svc.Signup("alice", "pw1")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	user, err := svc.Login("alice", "pw1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user == nil || user.ID != created.ID {
		t.Errorf("Expected login as %q, got %+v", created.ID, user)
	}
	if current := svc.CurrentUser(); current == nil || current.ID != created.ID {
		t.Errorf("Expected session established, got %+v", current)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _ := setupTestService(t)

	if _, err := svc.Signup("alice", "pw1"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// Invalid credentials are a normal outcome, not an error.
	user, err := svc.Login("alice", "wrong")
	if err != nil {
		t.Fatalf("Expected nil error for wrong password, got %v", err)
	}
	if user != nil {
		t.Errorf("Expected no user for wrong password, got %+v", user)
	}
	if svc.CurrentUser() != nil {
		t.Error("Session established on invalid credentials")
	}

	user, err = svc.Login("nobody", "pw1")
	if err != nil || user != nil {
		t.Errorf("Expected nil, nil for unknown user, got %+v, %v", user, err)
	}
}

func TestLogoutKeepsRoster(t *testing.T) {
	svc, st := setupTestService(t)

	if _, err := svc.Signup("alice", "pw1"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if svc.CurrentUser() != nil {
		t.Error("Expected cleared session")
	}
	stored, err := st.Users()
	if err != nil || len(stored) != 1 {
		t.Errorf("Roster touched by logout: %+v, %v", stored, err)
	}
}

func TestUpdateUser(t *testing.T) {
	svc, st := setupTestService(t)

	user, err := svc.Signup("alice", "pw1")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	newName := "alice2"
	if err := svc.UpdateUser(user.ID, models.UserUpdate{Username: &newName}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Mirrored into the session.
	current := svc.CurrentUser()
	if current == nil || current.Username != "alice2" {
		t.Errorf("Expected session mirror of update, got %+v", current)
	}
	// Avatar untouched by the partial update.
	if current.Avatar != user.Avatar {
		t.Errorf("Partial update touched avatar: %q -> %q", user.Avatar, current.Avatar)
	}

	stored, err := st.Users()
	if err != nil {
		t.Fatalf("Failed to read roster: %v", err)
	}
	if stored[0].Username != "alice2" {
		t.Errorf("Expected persisted username alice2, got %q", stored[0].Username)
	}
}

func TestUpdateUnknownUserIsNoop(t *testing.T) {
	svc, st := setupTestService(t)

	if _, err := svc.Signup("alice", "pw1"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	name := "ghost"
	if err := svc.UpdateUser("user_missing", models.UserUpdate{Username: &name}); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}

	stored, _ := st.Users()
	if len(stored) != 1 || stored[0].Username != "alice" {
		t.Errorf("Roster changed by unknown-id update: %+v", stored)
	}
}

func TestSessionSnapshotDroppedWhenUserMissing(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	ss, err := store.NewSessionStore(dir)
	if err != nil {
		t.Fatalf("Failed to create session store: %v", err)
	}
	// A snapshot pointing at a user that is not in the roster.
	if err := ss.Save(models.User{ID: "user_gone", Username: "ghost"}); err != nil {
		t.Fatalf("Failed to plant snapshot: %v", err)
	}

	svc, err := New(st, ss)
	if err != nil {
		t.Fatalf("Failed to create auth service: %v", err)
	}
	if svc.CurrentUser() != nil {
		t.Error("Expected orphan session snapshot to be dropped")
	}
}
