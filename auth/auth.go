// Package auth owns the user roster and the currently authenticated
// session. The roster is the single source of truth for username
// uniqueness; the session snapshot lives in its own shorter-lived scope
// and is cleared entirely on logout.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"localchat/models"
	"localchat/store"
)

var ErrDuplicateUsername = errors.New("username already exists")

type Service struct {
	store   *store.Store
	session *store.SessionStore

	mu      sync.Mutex
	users   []models.User
	current *models.User
}

// New loads the roster and any surviving session snapshot. A snapshot
// whose user id is no longer in the roster is dropped rather than trusted.
func New(st *store.Store, ss *store.SessionStore) (*Service, error) {
	users, err := st.Users()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	s := &Service{store: st, session: ss, users: users}

	snapshot, err := ss.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if snapshot != nil {
		for i := range users {
			if users[i].ID == snapshot.ID {
				s.current = snapshot
				break
			}
		}
		if s.current == nil {
			ss.Clear()
		}
	}

	return s, nil
}

// Signup creates a new user, appends it to the roster and establishes it
// as the current session. Username matching is case-sensitive exact.
func (s *Service) Signup(username, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read the roster so a user registered by another session since
	// startup still blocks the name.
	if err := s.reloadRoster(); err != nil {
		return models.User{}, err
	}

	for i := range s.users {
		if s.users[i].Username == username {
			return models.User{}, ErrDuplicateUsername
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           "user_" + uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Avatar:       "https://picsum.photos/seed/" + uuid.NewString() + "/200",
	}

	s.users = append(s.users, user)
	if err := s.store.PutUsers(s.users); err != nil {
		s.users = s.users[:len(s.users)-1]
		return models.User{}, err
	}

	s.setCurrent(user)
	return user, nil
}

// Login establishes a session iff the username exists and the password
// matches its stored hash. Invalid credentials are a normal outcome:
// the result is nil, nil and no session is established.
func (s *Service) Login(username, password string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadRoster(); err != nil {
		return nil, err
	}

	for i := range s.users {
		if s.users[i].Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(s.users[i].PasswordHash), []byte(password)) != nil {
			return nil, nil
		}
		user := s.users[i]
		s.setCurrent(user)
		return &user, nil
	}

	return nil, nil
}

// Logout clears the session. The roster is untouched.
func (s *Service) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	return s.session.Clear()
}

// UpdateUser applies a partial merge to the matching roster entry and, if
// it is the session's user, mirrors the change into the session snapshot.
// Unknown ids are a silent no-op.
func (s *Service) UpdateUser(id string, upd models.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID != id {
			continue
		}
		if upd.Username != nil {
			s.users[i].Username = *upd.Username
		}
		if upd.Avatar != nil {
			s.users[i].Avatar = *upd.Avatar
		}
		if err := s.store.PutUsers(s.users); err != nil {
			return err
		}
		if s.current != nil && s.current.ID == id {
			s.setCurrent(s.users[i])
		}
		return nil
	}

	return nil
}

// CurrentUser returns a copy of the session's user, or nil when signed out.
func (s *Service) CurrentUser() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	user := *s.current
	return &user
}

// Users returns a copy of the roster.
func (s *Service) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, len(s.users))
	copy(users, s.users)
	return users
}

func (s *Service) reloadRoster() error {
	users, err := s.store.Users()
	if err != nil {
		return fmt.Errorf("reload roster: %w", err)
	}
	s.users = users
	return nil
}

func (s *Service) setCurrent(user models.User) {
	s.current = &user
	// A failed snapshot write only costs session survival across a
	// restart; the in-memory session stands either way.
	_ = s.session.Save(user)
}
