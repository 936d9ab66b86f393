// Package session composes the identity store, message log, presence
// tracker and sync loop into one chat session: the equivalent of a single
// signed-in browser tab. Any number of sessions pointed at the same store
// file converge through polling.
package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"localchat/auth"
	"localchat/chat"
	"localchat/models"
	"localchat/presence"
	"localchat/store"
	"localchat/syncer"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotSender        = errors.New("only the sender may modify a message")
)

type Client struct {
	auth    *auth.Service
	log     *chat.Log
	tracker *presence.Tracker
	loop    *syncer.Loop
	logger  *zap.Logger

	// The control surface serves each connection in its own goroutine,
	// so the open conversation must be guarded.
	mu         sync.Mutex
	activeChat models.ChatPartner
}

// New assembles a session over the shared store. If a session snapshot
// survived (same process re-initializing), the sync loop starts
// immediately; otherwise it starts on the first successful signup or login.
func New(st *store.Store, ss *store.SessionStore, bot chat.Responder, pollInterval time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	authSvc, err := auth.New(st, ss)
	if err != nil {
		return nil, err
	}

	log := chat.NewLog(st, bot, logger)
	tracker := presence.NewTracker(st)

	c := &Client{
		auth:       authSvc,
		log:        log,
		tracker:    tracker,
		loop:       syncer.New(st, log, tracker, pollInterval, logger),
		logger:     logger,
		activeChat: models.GlobalChat,
	}

	if user := authSvc.CurrentUser(); user != nil {
		c.startSession(user.ID)
	}

	return c, nil
}

// Signup registers a new user and opens a session for it.
func (c *Client) Signup(username, password string) (models.User, error) {
	user, err := c.auth.Signup(username, password)
	if err != nil {
		return models.User{}, err
	}
	c.startSession(user.ID)
	return user, nil
}

// Login opens a session iff the credentials match. A nil user with nil
// error means invalid credentials.
func (c *Client) Login(username, password string) (*models.User, error) {
	user, err := c.auth.Login(username, password)
	if err != nil || user == nil {
		return nil, err
	}
	c.startSession(user.ID)
	return user, nil
}

// Logout stops the sync loop and clears the session. The roster and the
// message log are untouched.
func (c *Client) Logout() error {
	c.loop.Stop()
	c.mu.Lock()
	c.activeChat = models.GlobalChat
	c.mu.Unlock()
	return c.auth.Logout()
}

// UpdateProfile applies a partial update to the signed-in user.
func (c *Client) UpdateProfile(upd models.UserUpdate) error {
	user := c.auth.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}
	return c.auth.UpdateUser(user.ID, upd)
}

// SetActiveChat switches the open conversation and heartbeats the new
// one. This is the only place presence is written: it reflects "which
// chat is open", not raw activity.
func (c *Client) SetActiveChat(partner models.ChatPartner) error {
	user := c.auth.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	c.activeChat = partner
	c.mu.Unlock()

	return c.tracker.Heartbeat(user.ID, partner.ID)
}

// ActiveChat returns the open conversation, Global Chat by default.
func (c *Client) ActiveChat() models.ChatPartner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChat
}

// Send posts text to the given receiver as the signed-in user.
func (c *Client) Send(text, receiverID string) (models.Message, error) {
	user := c.auth.CurrentUser()
	if user == nil {
		return models.Message{}, ErrNotAuthenticated
	}
	return c.log.Send(user.ID, text, receiverID)
}

// Edit rewrites one of the signed-in user's own messages. The storage
// layer has no access control, so ownership is enforced here.
func (c *Client) Edit(messageID, newText string) error {
	if err := c.checkOwnership(messageID); err != nil {
		return err
	}
	return c.log.Edit(messageID, newText)
}

// Delete removes one of the signed-in user's own messages.
func (c *Client) Delete(messageID string) error {
	if err := c.checkOwnership(messageID); err != nil {
		return err
	}
	return c.log.Delete(messageID)
}

func (c *Client) checkOwnership(messageID string) error {
	user := c.auth.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}
	msg, ok := c.log.Get(messageID)
	if !ok {
		// Unknown ids fall through to the log's silent no-op.
		return nil
	}
	if msg.SenderID != user.ID {
		return ErrNotSender
	}
	return nil
}

// VisibleMessages returns the open conversation's messages in order.
func (c *Client) VisibleMessages() []models.Message {
	user := c.auth.CurrentUser()
	if user == nil {
		return nil
	}
	return c.log.VisibleMessages(c.ActiveChat().ID, user.ID)
}

// Partners lists the selectable conversation targets: the two sentinels
// followed by every other registered user in roster order.
func (c *Client) Partners() []models.ChatPartner {
	current := c.auth.CurrentUser()

	partners := []models.ChatPartner{models.GlobalChat, models.GeminiBot}
	for _, user := range c.auth.Users() {
		if current != nil && user.ID == current.ID {
			continue
		}
		partners = append(partners, models.ChatPartner{
			ID:       user.ID,
			Username: user.Username,
			Avatar:   user.Avatar,
		})
	}
	return partners
}

// Activity returns the raw presence table: every user's open conversation
// and last heartbeat time, as last synced.
func (c *Client) Activity() models.Activity {
	return c.tracker.Snapshot()
}

// StatusFor renders partner presence for the contact list. Sentinels have
// no status.
func (c *Client) StatusFor(partnerID string) presence.Status {
	if partnerID == models.GlobalChatID || partnerID == models.BotID {
		return presence.StatusNone
	}
	user := c.auth.CurrentUser()
	if user == nil {
		return presence.StatusNone
	}
	return c.tracker.StatusFor(partnerID, user.ID)
}

// CurrentUser returns the signed-in user, or nil.
func (c *Client) CurrentUser() *models.User {
	return c.auth.CurrentUser()
}

// BotTyping reports whether the bot is composing a reply.
func (c *Client) BotTyping() bool {
	return c.log.BotTyping()
}

// Close tears the session down: the sync loop is stopped (no further
// reconciliation) and the per-process session scope is cleared. In-flight
// bot requests are not cancelled; their replies still land in the store.
func (c *Client) Close() error {
	c.loop.Stop()
	return c.auth.Logout()
}

func (c *Client) startSession(userID string) {
	c.loop.Start()
	if err := c.tracker.Heartbeat(userID, c.ActiveChat().ID); err != nil {
		c.logger.Warn("initial heartbeat failed", zap.Error(err))
	}
}
