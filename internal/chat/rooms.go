package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Rooms binds sessions to conversation rooms and fans frames out to them.
// It keeps a reverse index so a closing session leaves all its rooms at once.
type Rooms struct {
	store Store

	mu           sync.RWMutex
	rooms        map[ConversationID]map[*Session]struct{}
	sessionRooms map[*Session]map[ConversationID]struct{}
}

// NewRooms creates an empty room index backed by store for auto-join lookups.
func NewRooms(store Store) *Rooms {
	return &Rooms{
		store:        store,
		rooms:        make(map[ConversationID]map[*Session]struct{}),
		sessionRooms: make(map[*Session]map[ConversationID]struct{}),
	}
}

// AutoJoin subscribes s to the room of every conversation its user takes part
// in and returns the conversations it found.
func (r *Rooms) AutoJoin(ctx context.Context, s *Session) ([]ConversationSummary, error) {
	summaries, err := r.store.FindConversationsForUser(ctx, s.User.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", ErrPersistence, err)
	}
	r.mu.Lock()
	for _, c := range summaries {
		r.joinLocked(s, c.ID)
	}
	r.mu.Unlock()
	return summaries, nil
}

// Join subscribes s to the conversation room. Joining twice is a no-op.
// No membership check happens here; it only scopes broadcasts.
func (r *Rooms) Join(s *Session, id ConversationID) {
	r.mu.Lock()
	r.joinLocked(s, id)
	r.mu.Unlock()
}

// Leave unsubscribes s from the conversation room. Leaving twice is a no-op.
func (r *Rooms) Leave(s *Session, id ConversationID) {
	r.mu.Lock()
	r.leaveLocked(s, id)
	r.mu.Unlock()
}

// LeaveAll removes s from every room it joined.
func (r *Rooms) LeaveAll(s *Session) {
	r.mu.Lock()
	for id := range r.sessionRooms[s] {
		r.leaveLocked(s, id)
	}
	delete(r.sessionRooms, s)
	r.mu.Unlock()
}

// Members returns a snapshot of the sessions subscribed to the room.
func (r *Rooms) Members(id ConversationID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[id]
	out := make([]*Session, 0, len(room))
	for s := range room {
		out = append(out, s)
	}
	return out
}

// RoomsOf returns the conversation ids s is subscribed to, ascending.
func (r *Rooms) RoomsOf(s *Session) []ConversationID {
	r.mu.RLock()
	ids := make([]ConversationID, 0, len(r.sessionRooms[s]))
	for id := range r.sessionRooms[s] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// IsMember reports whether s is subscribed to the room.
func (r *Rooms) IsMember(s *Session, id ConversationID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[id][s]
	return ok
}

// Broadcast queues frame on every session in the room except exclude and
// returns how many sessions accepted it.
func (r *Rooms) Broadcast(id ConversationID, frame []byte, exclude *Session) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for s := range r.rooms[id] {
		if s == exclude {
			continue
		}
		if s.Send(frame) {
			delivered++
		}
	}
	return delivered
}

func (r *Rooms) joinLocked(s *Session, id ConversationID) {
	room := r.rooms[id]
	if room == nil {
		room = make(map[*Session]struct{})
		r.rooms[id] = room
	}
	room[s] = struct{}{}

	memberships := r.sessionRooms[s]
	if memberships == nil {
		memberships = make(map[ConversationID]struct{})
		r.sessionRooms[s] = memberships
	}
	memberships[id] = struct{}{}
}

func (r *Rooms) leaveLocked(s *Session, id ConversationID) {
	if room := r.rooms[id]; room != nil {
		delete(room, s)
		if len(room) == 0 {
			delete(r.rooms, id)
		}
	}
	if memberships, ok := r.sessionRooms[s]; ok {
		delete(memberships, id)
		if len(memberships) == 0 {
			delete(r.sessionRooms, s)
		}
	}
}
