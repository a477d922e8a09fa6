package chat

import (
	"context"
	"time"
)

// Store is the persistence gateway consumed by the core.
// Implementations return ErrNotFound for unknown ids.
type Store interface {
	// FindConversationsForUser lists the user's conversations, most recent activity first.
	FindConversationsForUser(ctx context.Context, userID UserID) ([]ConversationSummary, error)
	// FindConversation loads a single conversation.
	FindConversation(ctx context.Context, id ConversationID) (*Conversation, error)
	// FindOrCreateConversation returns the unique conversation of the unordered pair.
	// The second return value reports whether it was created by this call.
	FindOrCreateConversation(ctx context.Context, a, b UserID) (*Conversation, bool, error)
	// CreateMessage persists an unread message and returns it with the sender projection.
	CreateMessage(ctx context.Context, conversationID ConversationID, senderID UserID, content string, typ MessageType) (*Message, error)
	// MarkMessagesRead marks unread messages not authored by readerID as read,
	// optionally restricted to one message, and returns the number of rows changed.
	MarkMessagesRead(ctx context.Context, conversationID ConversationID, readerID UserID, messageID *MessageID) (int64, error)
	// TouchConversation bumps the last-activity timestamp.
	TouchConversation(ctx context.Context, id ConversationID) error
	// FindUserProjection loads the display projection of a user.
	FindUserProjection(ctx context.Context, id UserID) (*User, error)
}

// Authenticator verifies a bearer credential and resolves the user behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}

// Toucher updates a conversation's last-activity timestamp out of the send path.
type Toucher interface {
	Touch(ctx context.Context, id ConversationID) error
}

// EventKind names a domain event published after a durable change.
type EventKind string

const (
	EventMessageCreated      EventKind = "message.created"
	EventMessagesRead        EventKind = "messages.read"
	EventConversationCreated EventKind = "conversation.created"
)

// DomainEvent describes a durable change for downstream consumers.
type DomainEvent struct {
	Kind           EventKind      `json:"kind"`
	ConversationID ConversationID `json:"conversationId"`
	UserID         UserID         `json:"userId"`
	MessageID      *MessageID     `json:"messageId,omitempty"`
	Count          int64          `json:"count,omitempty"`
	At             time.Time      `json:"at"`
}

// EventSink receives domain events. Publishing is best effort.
type EventSink interface {
	Publish(ctx context.Context, ev DomainEvent) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, DomainEvent) error { return nil }

// storeToucher touches the conversation directly through the store.
type storeToucher struct {
	store Store
}

func (t storeToucher) Touch(ctx context.Context, id ConversationID) error {
	return t.store.TouchConversation(ctx, id)
}
