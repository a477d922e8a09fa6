package chat

import (
	"context"
	"fmt"

	"github.com/omochice/realtime-chat/pkg/protocol"
)

// handlerFunc handles one inbound event for a session.
type handlerFunc func(ctx context.Context, s *Session, ev protocol.Event) error

// typed adapts a handler taking a decoded payload of type T.
func typed[T any](fn func(ctx context.Context, s *Session, payload T) error) handlerFunc {
	return func(ctx context.Context, s *Session, ev protocol.Event) error {
		var payload T
		if err := ev.Bind(&payload); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return fn(ctx, s, payload)
	}
}

// routes is the dispatch table from event name to handler.
func (h *Hub) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		protocol.EventJoinConversation:  typed(h.joinConversation),
		protocol.EventLeaveConversation: typed(h.leaveConversation),
		protocol.EventGetConversations:  h.getConversations,
		protocol.EventGetOnlineUsers:    h.getOnlineUsers,
		protocol.EventSendMessage:       typed(h.sendMessage),
		protocol.EventTypingStart:       typed(h.typingStart),
		protocol.EventTypingStop:        typed(h.typingStop),
		protocol.EventMarkAsRead:        typed(h.markAsRead),
		protocol.EventStartConversation: typed(h.startConversation),
	}
}

func (h *Hub) joinConversation(_ context.Context, s *Session, ref protocol.ConversationRef) error {
	if ref.ConversationID <= 0 {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	h.rooms.Join(s, ConversationID(ref.ConversationID))
	return nil
}

func (h *Hub) leaveConversation(_ context.Context, s *Session, ref protocol.ConversationRef) error {
	if ref.ConversationID <= 0 {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	h.rooms.Leave(s, ConversationID(ref.ConversationID))
	return nil
}

func (h *Hub) getConversations(ctx context.Context, s *Session, _ protocol.Event) error {
	summaries, err := h.dispatcher.ListConversations(ctx, s)
	if err != nil {
		return err
	}
	s.Send(conversationsFrame(summaries))
	return nil
}

func (h *Hub) getOnlineUsers(_ context.Context, s *Session, _ protocol.Event) error {
	s.Send(onlineUsersFrame(h.registry.OnlineUserIDs()))
	return nil
}

func (h *Hub) sendMessage(ctx context.Context, s *Session, req protocol.SendMessage) error {
	_, err := h.dispatcher.SendMessage(ctx, s, req)
	return err
}

func (h *Hub) typingStart(_ context.Context, s *Session, req protocol.Typing) error {
	return h.dispatcher.StartTyping(s, req)
}

func (h *Hub) typingStop(_ context.Context, s *Session, req protocol.Typing) error {
	return h.dispatcher.StopTyping(s, req)
}

func (h *Hub) markAsRead(ctx context.Context, s *Session, req protocol.MarkAsRead) error {
	_, err := h.dispatcher.MarkAsRead(ctx, s, req)
	return err
}

func (h *Hub) startConversation(ctx context.Context, s *Session, req protocol.StartConversation) error {
	summary, err := h.dispatcher.StartConversation(ctx, s, req)
	if err != nil {
		return err
	}
	s.Send(frame(protocol.EventConversationStarted, conversationView(*summary)))
	return nil
}
