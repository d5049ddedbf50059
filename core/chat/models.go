package chat

import (
	"time"

	"github.com/trezcool/darasa/core/user"
)

const (
	MaxContentLength    = 4000
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// Chat is a private conversation between two users. The pair is unordered and stored
// normalised (User1ID < User2ID), so there is at most one Chat per pair.
type Chat struct {
	ID            string     `json:"id"`
	User1ID       string     `json:"user1_id"`
	User2ID       string     `json:"user2_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

func (c Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// OtherParticipant returns the participant that is not userID.
func (c Chat) OtherParticipant(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// NormalizePair orders two user IDs the way they are stored on a Chat.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

type Message struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	SenderID  string     `json:"sender_id"`
	Content   string     `json:"content"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Summary is a Chat as listed in a user's chat widget.
type Summary struct {
	Chat
	OtherUser   user.Brief `json:"other_user"`
	IsOnline    bool       `json:"is_online"`
	LastMessage *Message   `json:"last_message"`
	UnreadCount int        `json:"unread_count"`
}

// ReadReceipt is pushed to both participants after messages got marked read.
type ReadReceipt struct {
	ChatID   string    `json:"chat_id"`
	ReaderID string    `json:"reader_id"`
	Count    int       `json:"count"`
	ReadAt   time.Time `json:"read_at"`
}

type MessageFilter struct {
	Before time.Time `query:"before"`
	Limit  int       `query:"limit"`
}

func (f *MessageFilter) Clean() {
	if f.Limit <= 0 {
		f.Limit = DefaultMessageLimit
	}
	if f.Limit > MaxMessageLimit {
		f.Limit = MaxMessageLimit
	}
}

type NewChat struct {
	UserID string `json:"user_id" validate:"required"`
}

type NewMessage struct {
	Content string `json:"content" validate:"required,notblank,max=4000"`
}
