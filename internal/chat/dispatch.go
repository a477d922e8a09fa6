package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omochice/realtime-chat/pkg/protocol"
)

// DefaultPublishTimeout bounds how long a domain event publish may hold up
// the sender's receive loop.
const DefaultPublishTimeout = 2 * time.Second

// Dispatcher validates, persists and fans out the events that change durable state.
type Dispatcher struct {
	store          Store
	registry       *Registry
	rooms          *Rooms
	typing         *Typing
	toucher        Toucher
	events         EventSink
	publishTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// SendMessage persists a message from s and delivers it to the whole room,
// sender included. Nothing is broadcast unless persistence succeeded.
func (d *Dispatcher) SendMessage(ctx context.Context, s *Session, req protocol.SendMessage) (*Message, error) {
	convID := ConversationID(req.ConversationID)
	if convID <= 0 {
		return nil, fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	typ, err := ParseMessageType(req.MessageType)
	if err != nil {
		return nil, err
	}

	if _, err := d.authorize(ctx, convID, s.User.ID); err != nil {
		return nil, err
	}

	msg, err := d.store.CreateMessage(ctx, convID, s.User.ID, content, typ)
	if err != nil {
		return nil, fmt.Errorf("%w: create message: %v", ErrPersistence, err)
	}
	if msg.Sender.ID == 0 {
		msg.Sender = s.User
	}

	d.rooms.Broadcast(convID, newMessageFrame(msg), nil)

	d.typing.Stop(convID, s.User.ID)
	d.rooms.Broadcast(convID, stoppedTypingFrame(convID, s.User.ID), s)

	if err := d.toucher.Touch(ctx, convID); err != nil {
		d.logger.Warn("touch conversation failed", "conversation_id", convID, "error", err)
	}
	mid := msg.ID
	d.publish(ctx, DomainEvent{
		Kind:           EventMessageCreated,
		ConversationID: convID,
		UserID:         s.User.ID,
		MessageID:      &mid,
		At:             msg.CreatedAt,
	})
	return msg, nil
}

// MarkAsRead marks the peer's unread messages as read for s.User and tells the
// room. Calling it again when nothing is unread changes nothing and stays
// silent. A messageId that does not exist in the conversation is ErrNotFound.
func (d *Dispatcher) MarkAsRead(ctx context.Context, s *Session, req protocol.MarkAsRead) (int64, error) {
	convID := ConversationID(req.ConversationID)
	if convID <= 0 {
		return 0, fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	var messageID *MessageID
	if req.MessageID != nil {
		mid := MessageID(*req.MessageID)
		messageID = &mid
	}

	if _, err := d.authorize(ctx, convID, s.User.ID); err != nil {
		return 0, err
	}

	updated, err := d.store.MarkMessagesRead(ctx, convID, s.User.ID, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("message in conversation %d: %w", convID, ErrNotFound)
		}
		return 0, fmt.Errorf("%w: mark read: %v", ErrPersistence, err)
	}
	if updated == 0 {
		return 0, nil
	}

	d.rooms.Broadcast(convID, messagesReadFrame(convID, s.User.ID, messageID), nil)
	d.publish(ctx, DomainEvent{
		Kind:           EventMessagesRead,
		ConversationID: convID,
		UserID:         s.User.ID,
		MessageID:      messageID,
		Count:          updated,
		At:             d.now(),
	})
	return updated, nil
}

// StartTyping records s as the conversation's typer and tells the other room members.
func (d *Dispatcher) StartTyping(s *Session, req protocol.Typing) error {
	convID, err := d.subscribed(s, req.ConversationID)
	if err != nil {
		return err
	}
	d.typing.Start(convID, s)
	d.rooms.Broadcast(convID, typingFrame(convID, s.User), s)
	return nil
}

// StopTyping idles the conversation. The stop is broadcast even when another
// user took the slot meanwhile, so no client keeps a stale indicator.
func (d *Dispatcher) StopTyping(s *Session, req protocol.Typing) error {
	convID, err := d.subscribed(s, req.ConversationID)
	if err != nil {
		return err
	}
	d.typing.Stop(convID, s.User.ID)
	d.rooms.Broadcast(convID, stoppedTypingFrame(convID, s.User.ID), s)
	return nil
}

// ListConversations returns the conversation snapshot of s.User.
func (d *Dispatcher) ListConversations(ctx context.Context, s *Session) ([]ConversationSummary, error) {
	summaries, err := d.store.FindConversationsForUser(ctx, s.User.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", ErrPersistence, err)
	}
	return summaries, nil
}

// StartConversation finds or creates the conversation between s.User and peer
// and subscribes both users' current sessions to its room.
func (d *Dispatcher) StartConversation(ctx context.Context, s *Session, req protocol.StartConversation) (*ConversationSummary, error) {
	peerID := UserID(req.UserID)
	if peerID <= 0 {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidPayload)
	}
	if peerID == s.User.ID {
		return nil, ErrSameUser
	}
	peer, err := d.store.FindUserProjection(ctx, peerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	conv, created, err := d.store.FindOrCreateConversation(ctx, s.User.ID, peerID)
	if err != nil {
		return nil, fmt.Errorf("%w: find or create conversation: %v", ErrPersistence, err)
	}

	d.rooms.Join(s, conv.ID)
	if other, ok := d.registry.Lookup(peerID); ok {
		d.rooms.Join(other, conv.ID)
	}
	if created {
		d.publish(ctx, DomainEvent{
			Kind:           EventConversationCreated,
			ConversationID: conv.ID,
			UserID:         s.User.ID,
			At:             conv.CreatedAt,
		})
	}
	return &ConversationSummary{Conversation: *conv, OtherUser: *peer}, nil
}

// authorize loads the conversation and checks that userID takes part in it.
func (d *Dispatcher) authorize(ctx context.Context, id ConversationID, userID UserID) (*Conversation, error) {
	conv, err := d.store.FindConversation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: find conversation: %v", ErrPersistence, err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotAMember
	}
	return conv, nil
}

// subscribed checks that s currently listens to the conversation room.
func (d *Dispatcher) subscribed(s *Session, raw int64) (ConversationID, error) {
	convID := ConversationID(raw)
	if convID <= 0 {
		return 0, fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	if !d.rooms.IsMember(s, convID) {
		return 0, ErrNotAMember
	}
	return convID, nil
}

func (d *Dispatcher) publish(ctx context.Context, ev DomainEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := d.events.Publish(ctx, ev); err != nil {
		d.logger.Warn("publish domain event failed", "kind", ev.Kind, "conversation_id", ev.ConversationID, "error", err)
	}
}
