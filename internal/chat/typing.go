package chat

import (
	"slices"
	"sync"
)

// Typer is the user currently typing in a conversation and the session
// the typing started from.
type Typer struct {
	UserID    UserID
	Username  string
	SessionID string
}

// Typing tracks at most one active typer per conversation.
// A conversation without an entry is idle.
type Typing struct {
	mu     sync.Mutex
	active map[ConversationID]Typer
}

// NewTyping creates a tracker with every conversation idle.
func NewTyping() *Typing {
	return &Typing{active: make(map[ConversationID]Typer)}
}

// Start records the user of s as the conversation's typer, replacing any other typer.
func (t *Typing) Start(id ConversationID, s *Session) {
	t.mu.Lock()
	t.active[id] = Typer{UserID: s.User.ID, Username: s.User.Username, SessionID: s.ID}
	t.mu.Unlock()
}

// Stop returns the conversation to idle if userID holds the slot.
// It reports whether the state changed.
func (t *Typing) Stop(id ConversationID, userID UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.active[id]
	if !ok || current.UserID != userID {
		return false
	}
	delete(t.active, id)
	return true
}

// Current returns the conversation's typer, if any.
func (t *Typing) Current(id ConversationID) (Typer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	typer, ok := t.active[id]
	return typer, ok
}

// ClearUser idles every conversation held by userID and returns those
// conversations in ascending order.
func (t *Typing) ClearUser(userID UserID) []ConversationID {
	return t.clear(func(typer Typer) bool { return typer.UserID == userID })
}

// ClearSession idles every conversation whose typing started from the
// session sessionID, in ascending order.
func (t *Typing) ClearSession(sessionID string) []ConversationID {
	return t.clear(func(typer Typer) bool { return typer.SessionID == sessionID })
}

func (t *Typing) clear(match func(Typer) bool) []ConversationID {
	t.mu.Lock()
	var cleared []ConversationID
	for id, typer := range t.active {
		if match(typer) {
			delete(t.active, id)
			cleared = append(cleared, id)
		}
	}
	t.mu.Unlock()
	slices.Sort(cleared)
	return cleared
}
