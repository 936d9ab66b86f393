// Package chat owns the shared message log: the append-only (with
// edit/delete) collection every session reads and writes through the
// persistent store. Messages to the bot sentinel additionally trigger the
// bot adapter and append its reply when it arrives.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"localchat/models"
	"localchat/store"
)

// Responder is the conversational bot adapter. It never fails: on any
// internal error it returns a fixed fallback string.
type Responder interface {
	Respond(ctx context.Context, prompt, conversationID string) string
}

type Log struct {
	store  *store.Store
	bot    Responder
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	messages  []models.Message
	botTyping bool

	pending sync.WaitGroup // in-flight bot requests
}

func NewLog(st *store.Store, bot Responder, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Log{
		store:  st,
		bot:    bot,
		logger: logger,
		now:    time.Now,
	}

	messages, err := st.Messages()
	switch {
	case err == nil:
		l.messages = messages
	case errors.Is(err, store.ErrNotFound):
	default:
		// The sync loop will pick the log up once it is readable again.
		logger.Warn("starting with empty message log", zap.Error(err))
	}
	return l
}

// Send appends a message from senderID and persists the whole log. If the
// receiver is the bot sentinel the adapter is called off this goroutine:
// the typing flag stays set for the duration of the call and the reply is
// appended (sender = bot, receiver = the human) when it resolves. A session
// torn down mid-request still lets the reply land in the store.
func (l *Log) Send(senderID, text, receiverID string) (models.Message, error) {
	msg := models.Message{
		ID:         "msg_" + uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Timestamp:  l.now().UnixMilli(),
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	if err := l.persistLocked(); err != nil {
		l.messages = l.messages[:len(l.messages)-1]
		l.mu.Unlock()
		return models.Message{}, err
	}
	if receiverID == models.BotID {
		l.botTyping = true
		l.pending.Add(1)
		go l.askBot(text, senderID)
	}
	l.mu.Unlock()

	return msg, nil
}

func (l *Log) askBot(prompt, userID string) {
	defer l.pending.Done()

	// Deliberately not tied to the session's lifetime: the request is
	// fire-and-forget with an eventual append.
	reply := l.bot.Respond(context.Background(), prompt, userID)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.botTyping = false
	l.messages = append(l.messages, models.Message{
		ID:         "msg_" + uuid.NewString() + "_bot",
		SenderID:   models.BotID,
		ReceiverID: userID,
		Text:       reply,
		Timestamp:  l.now().UnixMilli(),
	})
	if err := l.persistLocked(); err != nil {
		l.logger.Warn("failed to persist bot reply", zap.Error(err))
	}
}

// Edit replaces the text of the matching message and marks it edited.
// Unknown ids are a silent no-op.
func (l *Log) Edit(messageID, newText string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.messages {
		if l.messages[i].ID == messageID {
			l.messages[i].Text = newText
			l.messages[i].IsEdited = true
			return l.persistLocked()
		}
	}
	return nil
}

// Delete removes the matching message entirely. Hard delete: a delete
// racing a concurrent edit in another session is undefined, last full-log
// write wins. Unknown ids are a silent no-op.
func (l *Log) Delete(messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.messages {
		if l.messages[i].ID == messageID {
			l.messages = append(l.messages[:i], l.messages[i+1:]...)
			return l.persistLocked()
		}
	}
	return nil
}

// Get returns the message with the given id, if present.
func (l *Log) Get(messageID string) (models.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.messages {
		if l.messages[i].ID == messageID {
			return l.messages[i], true
		}
	}
	return models.Message{}, false
}

// VisibleMessages projects the ordered subsequence relevant to the active
// conversation: everything addressed to the global sentinel, or everything
// exchanged between the current user and the partner in either direction.
// Pure projection, no side effects.
func (l *Log) VisibleMessages(activeChatID, currentUserID string) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.Message
	for _, msg := range l.messages {
		if activeChatID == models.GlobalChatID {
			if msg.ReceiverID == models.GlobalChatID {
				out = append(out, msg)
			}
			continue
		}
		if (msg.SenderID == currentUserID && msg.ReceiverID == activeChatID) ||
			(msg.SenderID == activeChatID && msg.ReceiverID == currentUserID) {
			out = append(out, msg)
		}
	}
	return out
}

// ReplaceIfChanged swaps the in-memory log for stored iff they differ by
// full-content comparison. Reports whether a replacement happened.
func (l *Log) ReplaceIfChanged(stored []models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if messagesEqual(l.messages, stored) {
		return false
	}
	l.messages = stored
	return true
}

// Snapshot returns a copy of the in-memory log.
func (l *Log) Snapshot() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// BotTyping reports whether a bot request is currently in flight.
func (l *Log) BotTyping() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.botTyping
}

// Wait blocks until all in-flight bot requests have appended their reply.
func (l *Log) Wait() {
	l.pending.Wait()
}

func (l *Log) persistLocked() error {
	if err := l.store.PutMessages(l.messages); err != nil {
		return fmt.Errorf("persist messages: %w", err)
	}
	return nil
}

// messagesEqual compares by serialized content, the same granularity the
// store itself uses.
func messagesEqual(a, b []models.Message) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
