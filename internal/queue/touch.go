package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
)

// TypeTouchConversation bumps a conversation's last-activity timestamp.
const TypeTouchConversation = "chat:touch_conversation"

type touchPayload struct {
	ConversationID chat.ConversationID `json:"conversationId"`
}

// Toucher implements chat.Toucher by enqueuing a touch job, which keeps the
// write off the send path. Touches of one conversation within a second collapse.
type Toucher struct {
	jobs Enqueuer
}

// NewToucher creates a Toucher enqueuing on jobs.
func NewToucher(jobs Enqueuer) *Toucher {
	return &Toucher{jobs: jobs}
}

var _ chat.Toucher = (*Toucher)(nil)

func (t *Toucher) Touch(ctx context.Context, id chat.ConversationID) error {
	payload, err := json.Marshal(touchPayload{ConversationID: id})
	if err != nil {
		return fmt.Errorf("queue: encode touch payload: %w", err)
	}
	err = t.jobs.Enqueue(ctx, Job{
		Type:     TypeTouchConversation,
		Payload:  payload,
		Queue:    QueueChat,
		MaxRetry: 3,
		Dedup:    time.Second,
		Timeout:  10 * time.Second,
	})
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// TouchHandler applies touch jobs to store. Conversations deleted meanwhile
// are skipped.
func TouchHandler(store chat.Store, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, payload []byte) error {
		var p touchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Error("dropping malformed touch job", "error", err)
			return nil
		}
		err := store.TouchConversation(ctx, p.ConversationID)
		if errors.Is(err, chat.ErrNotFound) {
			logger.Debug("touch skipped for missing conversation", "conversation_id", p.ConversationID)
			return nil
		}
		return err
	}
}
