// Package protocol defines the JSON event contract spoken over the realtime connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client to server events.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventGetConversations  = "get_conversations"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkAsRead        = "mark_as_read"
	EventStartConversation = "start_conversation"
	EventGetOnlineUsers    = "get_online_users"
)

// Server to client events.
const (
	EventOnlineUsers         = "online_users"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventConversationsList   = "conversations_list"
	EventConversationStarted = "conversation_started"
	EventNewMessage          = "new_message"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventMessagesRead        = "messages_read"
	EventError               = "error"
)

// ErrEmptyEvent is returned when a frame carries no event name.
var ErrEmptyEvent = errors.New("protocol: event name is required")

// Event is the envelope of every frame: an event name and its JSON payload.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame for the named event. A nil payload produces a frame without data.
func Encode(name string, payload any) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyEvent
	}
	ev := Event{Name: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", name, err)
		}
		ev.Data = data
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return frame, nil
}

// Decode parses a frame into its envelope. The payload stays raw until Bind.
func Decode(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Name == "" {
		return Event{}, ErrEmptyEvent
	}
	return ev, nil
}

// Bind decodes the event payload into v.
func (e Event) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: payload is required", e.Name)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Name, err)
	}
	return nil
}
