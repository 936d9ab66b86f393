package models

// Chat partner sentinels. Every message addressed to GlobalChatID is visible
// to everyone; messages addressed to BotID are answered by the bot adapter.
const (
	GlobalChatID = "global"
	BotID        = "gemini-bot"
)

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Avatar       string `json:"avatar"`
}

type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"` // GlobalChatID, BotID or a user id
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
	IsEdited   bool   `json:"isEdited,omitempty"`
}

// ChatPartner is a selectable conversation target. Derived from the roster
// plus the two sentinels, never persisted.
type ChatPartner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// PresenceRecord is written only by the owning session for its own user id.
type PresenceRecord struct {
	ActiveChatID string `json:"activeChatId"`
	LastSeen     int64  `json:"lastSeen"` // unix milliseconds
}

// Activity maps user id to that user's latest presence record.
type Activity map[string]PresenceRecord

// UserUpdate is a partial update for a roster entry. Nil fields are left
// untouched.
type UserUpdate struct {
	Username *string
	Avatar   *string
}

var (
	GlobalChat = ChatPartner{
		ID:       GlobalChatID,
		Username: "Global Chat",
		Avatar:   "https://i.imgur.com/k2DPbZN.png",
	}
	GeminiBot = ChatPartner{
		ID:       BotID,
		Username: "Gemini Bot",
		Avatar:   "https://i.imgur.com/2Y4aHqf.png",
	}
)
