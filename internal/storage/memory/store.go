// Package memory provides an in-process persistence gateway. Not suitable for production.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
)

type pair struct {
	a, b chat.UserID
}

// Store keeps users, conversations and messages in memory.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[chat.UserID]chat.User
	conversations map[chat.ConversationID]*chat.Conversation
	byPair        map[pair]chat.ConversationID
	messages      map[chat.ConversationID][]*chat.Message
	nextConvID    chat.ConversationID
	nextMsgID     chat.MessageID
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		users:         make(map[chat.UserID]chat.User),
		conversations: make(map[chat.ConversationID]*chat.Conversation),
		byPair:        make(map[pair]chat.ConversationID),
		messages:      make(map[chat.ConversationID][]*chat.Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ chat.Store = (*Store)(nil)

// PutUser inserts or replaces a user projection.
func (s *Store) PutUser(u chat.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutConversation inserts a conversation with a fixed id, as fixtures need.
func (s *Store) PutConversation(id chat.ConversationID, a, b chat.UserID) (*chat.Conversation, error) {
	if a == b {
		return nil, chat.ErrSameUser
	}
	u1, u2 := chat.CanonicalPair(a, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPair[pair{u1, u2}]; ok {
		return nil, fmt.Errorf("memory: conversation for users %d and %d already exists", u1, u2)
	}
	if _, ok := s.conversations[id]; ok {
		return nil, fmt.Errorf("memory: conversation %d already exists", id)
	}
	conv := s.insertConversationLocked(id, u1, u2)
	if id > s.nextConvID {
		s.nextConvID = id
	}
	copied := *conv
	return &copied, nil
}

func (s *Store) FindConversationsForUser(ctx context.Context, userID chat.UserID) ([]chat.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.ConversationSummary, 0)
	for _, conv := range s.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}
		summary := chat.ConversationSummary{
			Conversation: *conv,
			OtherUser:    s.userLocked(conv.Other(userID)),
		}
		if msgs := s.messages[conv.ID]; len(msgs) > 0 {
			summary.LastMessage = cloneMessage(msgs[len(msgs)-1])
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) FindConversation(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *Store) FindOrCreateConversation(ctx context.Context, a, b chat.UserID) (*chat.Conversation, bool, error) {
	if a == b {
		return nil, false, chat.ErrSameUser
	}
	u1, u2 := chat.CanonicalPair(a, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[pair{u1, u2}]; ok {
		copied := *s.conversations[id]
		return &copied, false, nil
	}
	s.nextConvID++
	conv := s.insertConversationLocked(s.nextConvID, u1, u2)
	copied := *conv
	return &copied, true, nil
}

func (s *Store) CreateMessage(ctx context.Context, conversationID chat.ConversationID, senderID chat.UserID, content string, typ chat.MessageType) (*chat.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("memory: content is required")
	}
	if typ == "" {
		typ = chat.MessageTypeText
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, chat.ErrNotAMember
	}
	s.nextMsgID++
	msg := &chat.Message{
		ID:             s.nextMsgID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           typ,
		CreatedAt:      s.now().UTC(),
		Sender:         s.userLocked(senderID),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return cloneMessage(msg), nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, conversationID chat.ConversationID, readerID chat.UserID, messageID *chat.MessageID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return 0, chat.ErrNotFound
	}
	now := s.now().UTC()
	var updated int64
	found := messageID == nil
	for _, msg := range s.messages[conversationID] {
		if messageID != nil {
			if msg.ID != *messageID {
				continue
			}
			found = true
		}
		if msg.IsRead || msg.SenderID == readerID {
			continue
		}
		msg.IsRead = true
		readAt := now
		msg.ReadAt = &readAt
		updated++
	}
	if !found {
		return 0, chat.ErrNotFound
	}
	return updated, nil
}

func (s *Store) TouchConversation(ctx context.Context, id chat.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return chat.ErrNotFound
	}
	conv.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) FindUserProjection(ctx context.Context, id chat.UserID) (*chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return &u, nil
}

// Messages returns a copy of the conversation's messages in creation order.
func (s *Store) Messages(id chat.ConversationID) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, 0, len(s.messages[id]))
	for _, msg := range s.messages[id] {
		out = append(out, *cloneMessage(msg))
	}
	return out
}

// ConversationCount returns the number of stored conversations.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *Store) insertConversationLocked(id chat.ConversationID, u1, u2 chat.UserID) *chat.Conversation {
	now := s.now().UTC()
	conv := &chat.Conversation{
		ID:        id,
		User1ID:   u1,
		User2ID:   u2,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[id] = conv
	s.byPair[pair{u1, u2}] = id
	return conv
}

func (s *Store) userLocked(id chat.UserID) chat.User {
	if u, ok := s.users[id]; ok {
		return u
	}
	return chat.User{ID: id}
}

func cloneMessage(m *chat.Message) *chat.Message {
	if m == nil {
		return nil
	}
	copied := *m
	if m.ReadAt != nil {
		readAt := *m.ReadAt
		copied.ReadAt = &readAt
	}
	return &copied
}
