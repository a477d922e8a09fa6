package chat

import (
	"github.com/omochice/realtime-chat/pkg/protocol"
)

// frame encodes a server event. The payloads passed here are plain structs,
// so an encoding failure is a programming error.
func frame(name string, payload any) []byte {
	data, err := protocol.Encode(name, payload)
	if err != nil {
		panic(err)
	}
	return data
}

func errorFrame(message string) []byte {
	return frame(protocol.EventError, protocol.Error{Message: message})
}

func userView(u User) protocol.User {
	return protocol.User{ID: int64(u.ID), Username: u.Username, Avatar: u.Avatar}
}

func newMessageFrame(m *Message) []byte {
	return frame(protocol.EventNewMessage, protocol.NewMessage{
		ID:             int64(m.ID),
		ConversationID: int64(m.ConversationID),
		Content:        m.Content,
		MessageType:    string(m.Type),
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
		Sender:         userView(m.Sender),
	})
}

func typingFrame(id ConversationID, u User) []byte {
	return frame(protocol.EventUserTyping, protocol.UserTyping{
		UserID:         int64(u.ID),
		Username:       u.Username,
		ConversationID: int64(id),
	})
}

func stoppedTypingFrame(id ConversationID, userID UserID) []byte {
	return frame(protocol.EventUserStoppedTyping, protocol.UserTyping{
		UserID:         int64(userID),
		ConversationID: int64(id),
	})
}

func messagesReadFrame(id ConversationID, readBy UserID, messageID *MessageID) []byte {
	payload := protocol.MessagesRead{ConversationID: int64(id), ReadBy: int64(readBy)}
	if messageID != nil {
		mid := int64(*messageID)
		payload.MessageID = &mid
	}
	return frame(protocol.EventMessagesRead, payload)
}

func onlineUsersFrame(ids []UserID) []byte {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return frame(protocol.EventOnlineUsers, out)
}

func conversationView(c ConversationSummary) protocol.Conversation {
	view := protocol.Conversation{
		ID:        int64(c.ID),
		OtherUser: userView(c.OtherUser),
		UpdatedAt: c.UpdatedAt,
	}
	if m := c.LastMessage; m != nil {
		view.LastMessage = &protocol.LastMessage{
			ID:          int64(m.ID),
			Content:     m.Content,
			MessageType: string(m.Type),
			SenderID:    int64(m.SenderID),
			IsRead:      m.IsRead,
			CreatedAt:   m.CreatedAt,
		}
	}
	return view
}

func conversationsFrame(summaries []ConversationSummary) []byte {
	items := make([]protocol.Conversation, 0, len(summaries))
	for _, c := range summaries {
		items = append(items, conversationView(c))
	}
	return frame(protocol.EventConversationsList, items)
}
