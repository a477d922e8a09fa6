package chat

import (
	"errors"
	"strings"
)

var (
	// ErrAuthentication is returned for missing, malformed or expired credentials.
	ErrAuthentication = errors.New("chat: authentication failed")
	// ErrNotAMember is returned when a user acts on a conversation they do not belong to.
	ErrNotAMember = errors.New("chat: not a participant of this conversation")
	// ErrNotFound is returned for unknown conversations, messages or users.
	ErrNotFound = errors.New("chat: not found")
	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("chat: persistence failure")
	// ErrInvalidPayload is returned for malformed client events.
	ErrInvalidPayload = errors.New("chat: invalid payload")
	// ErrSameUser is returned when a conversation with oneself is requested.
	ErrSameUser = errors.New("chat: conversation requires two distinct users")
)

// ErrorMessage maps an error to the text sent to the client in an error event.
// Storage details never leave the process.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAMember):
		return "you are not a participant of this conversation"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrSameUser):
		return "cannot start a conversation with yourself"
	case errors.Is(err, ErrInvalidPayload):
		return strings.TrimPrefix(err.Error(), "chat: ")
	case errors.Is(err, ErrAuthentication):
		return "authentication failed"
	default:
		return "internal error, please retry"
	}
}
