// Package presence tracks which conversation each user has open and when
// they were last seen. Records are advisory and lossy: each session writes
// only its own entry and learns about everyone else through polling.
package presence

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"localchat/models"
	"localchat/store"
)

// OnlineWindow is how recently a user must have heartbeated to count as
// online. The check is strict: a record aged exactly OnlineWindow is
// already offline.
const OnlineWindow = 15 * time.Second

type Status int

const (
	StatusNone Status = iota
	StatusOnline
	StatusActiveWithViewer
	StatusInGlobalChat
)

// String renders the status the way the contact list shows it. StatusNone
// renders empty.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusActiveWithViewer:
		return "In chat with you"
	case StatusInGlobalChat:
		return "In Global Chat"
	default:
		return ""
	}
}

type Tracker struct {
	store *store.Store
	now   func() time.Time

	mu       sync.RWMutex
	activity models.Activity
}

func NewTracker(st *store.Store) *Tracker {
	return &Tracker{
		store:    st,
		now:      time.Now,
		activity: models.Activity{},
	}
}

// Heartbeat overwrites this user's entry in the presence table, leaving
// everyone else's untouched. The stored table is a single keyed blob, so
// the write is a read-modify-write of the whole thing. Called on every
// conversation switch, not on message traffic.
func (t *Tracker) Heartbeat(userID, activeChatID string) error {
	stored, err := t.store.Activity()
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		stored = models.Activity{}
	default:
		// Malformed table: skip the write rather than clobber what
		// another session may still be able to repair.
		return fmt.Errorf("heartbeat: %w", err)
	}

	stored[userID] = models.PresenceRecord{
		ActiveChatID: activeChatID,
		LastSeen:     t.now().UnixMilli(),
	}

	if err := t.store.PutActivity(stored); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}

	t.mu.Lock()
	t.activity = stored
	t.mu.Unlock()
	return nil
}

// Replace swaps the in-memory presence table wholesale. Used by the sync
// loop; presence is last-write-wins by nature.
func (t *Tracker) Replace(activity models.Activity) {
	if activity == nil {
		activity = models.Activity{}
	}
	t.mu.Lock()
	t.activity = activity
	t.mu.Unlock()
}

// Snapshot returns a copy of the in-memory presence table.
func (t *Tracker) Snapshot() models.Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(models.Activity, len(t.activity))
	for id, rec := range t.activity {
		out[id] = rec
	}
	return out
}

// IsOnline reports whether userID heartbeated within OnlineWindow. No
// record means never seen.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	rec, ok := t.activity[userID]
	t.mu.RUnlock()

	if !ok {
		return false
	}
	return t.now().UnixMilli()-rec.LastSeen < OnlineWindow.Milliseconds()
}

// StatusFor reports userID's presence as seen by viewerID.
func (t *Tracker) StatusFor(userID, viewerID string) Status {
	if !t.IsOnline(userID) {
		return StatusNone
	}

	t.mu.RLock()
	rec := t.activity[userID]
	t.mu.RUnlock()

	switch rec.ActiveChatID {
	case viewerID:
		return StatusActiveWithViewer
	case models.GlobalChatID:
		return StatusInGlobalChat
	default:
		return StatusOnline
	}
}
