// Package store is the persistent key-value store shared by every chat
// session on the same machine. Each logical table is a single JSON blob
// under a fixed key; every write is a whole-value overwrite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"localchat/models"
)

var (
	ErrNotFound  = errors.New("key not found")
	ErrMalformed = errors.New("malformed stored data")
)

// Fixed blob keys. The layout mirrors the three logical tables of the
// persisted state: roster, message log and presence.
const (
	KeyUsers    = "chat-users"
	KeyMessages = "chat-messages"
	KeyActivity = "chat-user-activity"
)

type Store struct {
	conn *sql.DB
}

func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	st := &Store{conn: conn}
	if err := st.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return st, nil
}

func (st *Store) Close() error {
	return st.conn.Close()
}

func (st *Store) init() error {
	_, err := st.conn.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	return err
}

// Get unmarshals the blob stored under key into v. Returns ErrNotFound if
// the key has never been written and ErrMalformed if the stored value is
// not valid JSON for v.
func (st *Store) Get(key string, v any) error {
	var raw string
	err := st.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
	}
	return nil
}

// Put overwrites the blob stored under key with the JSON encoding of v.
func (st *Store) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = st.conn.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(raw),
	)
	return err
}

// Users returns the stored roster. A roster that was never written reads
// as empty, not as an error.
func (st *Store) Users() ([]models.User, error) {
	var users []models.User
	err := st.Get(KeyUsers, &users)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (st *Store) PutUsers(users []models.User) error {
	return st.Put(KeyUsers, users)
}

// Messages returns the stored message log in insertion order.
func (st *Store) Messages() ([]models.Message, error) {
	var messages []models.Message
	if err := st.Get(KeyMessages, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (st *Store) PutMessages(messages []models.Message) error {
	if messages == nil {
		messages = []models.Message{}
	}
	return st.Put(KeyMessages, messages)
}

// Activity returns the stored presence table.
func (st *Store) Activity() (models.Activity, error) {
	var activity models.Activity
	if err := st.Get(KeyActivity, &activity); err != nil {
		return nil, err
	}
	return activity, nil
}

func (st *Store) PutActivity(activity models.Activity) error {
	if activity == nil {
		activity = models.Activity{}
	}
	return st.Put(KeyActivity, activity)
}
