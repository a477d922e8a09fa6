package chat

import (
	"slices"
	"sync"
)

// Registry maps each online user to its current session.
// The last session registered for a user wins.
type Registry struct {
	mu     sync.RWMutex
	byUser map[UserID]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[UserID]*Session),
	}
}

// Register records s as the user's current session and returns the session it
// displaced, if any. The displaced transport is left open.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.byUser[s.User.ID]
	r.byUser[s.User.ID] = s
	if previous == s {
		return nil
	}
	return previous
}

// Unregister removes s if it is still the user's current session.
// It reports whether the user went offline.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byUser[s.User.ID]
	if !ok || current != s {
		return false
	}
	delete(r.byUser, s.User.ID)
	return true
}

// Lookup returns the user's current session.
func (r *Registry) Lookup(id UserID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[id]
	return s, ok
}

// IsOnline reports whether the user has a registered session.
func (r *Registry) IsOnline(id UserID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// OnlineUserIDs returns the ids of all online users in ascending order.
func (r *Registry) OnlineUserIDs() []UserID {
	r.mu.RLock()
	ids := make([]UserID, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Broadcast queues frame on every registered session except exclude.
// It returns the number of sessions that accepted the frame.
func (r *Registry) Broadcast(frame []byte, exclude *Session) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for _, s := range r.byUser {
		if s == exclude {
			continue
		}
		if s.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// Sessions returns a snapshot of the registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		out = append(out, s)
	}
	return out
}
