package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/omochice/realtime-chat/internal/chat"
)

// DefaultTopicPrefix prefixes the events topic when none is configured.
const DefaultTopicPrefix = "chat"

// publisher is the part of Producer the event sink needs.
type publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// EventPublisher sends chat domain events to "<prefix>.events", keyed by
// conversation so each conversation's events stay ordered within a partition.
type EventPublisher struct {
	producer publisher
	topic    string
}

// NewEventPublisher creates a sink writing through producer.
func NewEventPublisher(producer publisher, topicPrefix string) *EventPublisher {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &EventPublisher{producer: producer, topic: topicPrefix + ".events"}
}

var _ chat.EventSink = (*EventPublisher)(nil)

// Topic returns the destination topic.
func (p *EventPublisher) Topic() string { return p.topic }

func (p *EventPublisher) Publish(ctx context.Context, ev chat.DomainEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: encode %s event: %w", ev.Kind, err)
	}
	key := strconv.FormatInt(int64(ev.ConversationID), 10)
	headers := map[string]string{"event-kind": string(ev.Kind)}
	if err := p.producer.Publish(ctx, p.topic, key, payload, headers); err != nil {
		return fmt.Errorf("kafka: publish %s event: %w", ev.Kind, err)
	}
	return nil
}
