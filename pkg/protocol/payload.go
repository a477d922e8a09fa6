package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// ConversationRef is the payload of join/leave events. Clients may send either a
// bare conversation id or an object carrying conversationId.
type ConversationRef struct {
	ConversationID int64 `json:"conversationId"`
}

// UnmarshalJSON accepts `5` as well as `{"conversationId":5}`.
func (r *ConversationRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var id int64
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		r.ConversationID = id
		return nil
	}
	type plain ConversationRef
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*r = ConversationRef(p)
	return nil
}

// SendMessage is the payload of send_message.
type SendMessage struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType,omitempty"`
}

// Typing is the payload of typing_start and typing_stop.
type Typing struct {
	ConversationID int64 `json:"conversationId"`
}

// MarkAsRead is the payload of mark_as_read.
type MarkAsRead struct {
	ConversationID int64  `json:"conversationId"`
	MessageID      *int64 `json:"messageId,omitempty"`
}

// StartConversation is the payload of start_conversation.
type StartConversation struct {
	UserID int64 `json:"userId"`
}

// User is the public projection of a participant.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// NewMessage is pushed to every room member once a message is persisted.
type NewMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Content        string    `json:"content"`
	MessageType    string    `json:"messageType"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
	Sender         User      `json:"sender"`
}

// LastMessage summarises the latest message of a conversation.
type LastMessage struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	SenderID    int64     `json:"senderId"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Conversation is one entry of conversations_list, also used for conversation_started.
type Conversation struct {
	ID          int64        `json:"id"`
	OtherUser   User         `json:"otherUser"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// UserTyping is the payload of user_typing and user_stopped_typing.
type UserTyping struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username,omitempty"`
	ConversationID int64  `json:"conversationId"`
}

// MessagesRead is the payload of messages_read.
type MessagesRead struct {
	ConversationID int64  `json:"conversationId"`
	ReadBy         int64  `json:"readBy"`
	MessageID      *int64 `json:"messageId,omitempty"`
}

// Error is the payload of error events.
type Error struct {
	Message string `json:"message"`
}
