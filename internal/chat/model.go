package chat

import (
	"fmt"
	"strings"
	"time"
)

// UserID identifies a user in the external user store.
type UserID int64

// ConversationID identifies a two-party conversation.
type ConversationID int64

// MessageID identifies a persisted message.
type MessageID int64

// MessageType tags the content of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// ParseMessageType validates a client supplied type. Empty means text.
func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MessageTypeText:
		return MessageTypeText, nil
	case MessageTypeImage:
		return MessageTypeImage, nil
	case MessageTypeFile:
		return MessageTypeFile, nil
	default:
		return "", fmt.Errorf("%w: unsupported message type %q", ErrInvalidPayload, raw)
	}
}

// User is the cached projection of a user record.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Conversation is a durable thread between two distinct users.
// User1ID is always the smaller id.
type Conversation struct {
	ID        ConversationID
	User1ID   UserID
	User2ID   UserID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanonicalPair orders two user ids so that the smaller one comes first.
func CanonicalPair(a, b UserID) (UserID, UserID) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether the user takes part in the conversation.
func (c Conversation) HasParticipant(id UserID) bool {
	return c.User1ID == id || c.User2ID == id
}

// Other returns the participant that is not id.
func (c Conversation) Other(id UserID) UserID {
	if c.User1ID == id {
		return c.User2ID
	}
	return c.User1ID
}

// Message is a persisted chat message with the sender projection attached.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	IsRead         bool
	ReadAt         *time.Time
	CreatedAt      time.Time
	Sender         User
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	Conversation
	OtherUser   User
	LastMessage *Message
}
