package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"localchat/models"
)

// SessionStore holds the authenticated user snapshot for one session
// process. Unlike the shared kv store it is scoped to a single process:
// the file is named after the pid and removed on logout or session close,
// so a restarted process always comes up signed out.
type SessionStore struct {
	path string
}

func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SessionStore{
		path: filepath.Join(dir, fmt.Sprintf("session-%d.json", os.Getpid())),
	}, nil
}

// Load returns the stored session user, or nil if no session is active.
func (ss *SessionStore) Load() (*models.User, error) {
	raw, err := os.ReadFile(ss.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: session snapshot: %v", ErrMalformed, err)
	}
	return &user, nil
}

func (ss *SessionStore) Save(user models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return os.WriteFile(ss.path, raw, 0o600)
}

// Clear removes the snapshot entirely. Clearing an absent snapshot is not
// an error.
func (ss *SessionStore) Clear() error {
	err := os.Remove(ss.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
