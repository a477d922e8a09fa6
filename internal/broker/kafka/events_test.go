package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/omochice/realtime-chat/internal/broker/kafka"
	"github.com/omochice/realtime-chat/internal/chat"
)

func TestEventPublisher_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chat.events" {
			return fmt.Errorf("topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "5" {
			return fmt.Errorf("key = %q", key)
		}
		value, _ := msg.Value.Encode()
		var ev chat.DomainEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		if ev.Kind != chat.EventMessageCreated || ev.ConversationID != 5 || ev.MessageID == nil || *ev.MessageID != 9 {
			return fmt.Errorf("event = %+v", ev)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != "event-kind" || string(msg.Headers[0].Value) != "message.created" {
			return fmt.Errorf("headers = %v", msg.Headers)
		}
		return nil
	})

	pub := kafka.NewEventPublisher(kafka.NewProducerFrom(sp), "")
	mid := chat.MessageID(9)
	err := pub.Publish(context.Background(), chat.DomainEvent{
		Kind:           chat.EventMessageCreated,
		ConversationID: 5,
		UserID:         1,
		MessageID:      &mid,
		At:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestEventPublisher_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := kafka.NewEventPublisher(kafka.NewProducerFrom(sp), "prod.chat")
	if got := pub.Topic(); got != "prod.chat.events" {
		t.Errorf("Topic() = %q", got)
	}
	err := pub.Publish(context.Background(), chat.DomainEvent{Kind: chat.EventMessagesRead, ConversationID: 5, Count: 2})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Publish() error = %v, want ErrOutOfBrokers", err)
	}
}

func TestProducer_CanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := kafka.NewProducerFrom(sp).Publish(ctx, "chat.events", "5", []byte("{}"), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestProducer_CloseNil(t *testing.T) {
	if err := (&kafka.Producer{}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestAsyncProducer_Publish(t *testing.T) {
	ap := mocks.NewAsyncProducer(t, nil)
	ap.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chat.events" {
			return fmt.Errorf("topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "5" {
			return fmt.Errorf("key = %q", key)
		}
		return nil
	})
	ap.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	producer := kafka.NewAsyncProducerFrom(ap, quietLogger())
	pub := kafka.NewEventPublisher(producer, "")
	for _, kind := range []chat.EventKind{chat.EventMessageCreated, chat.EventMessagesRead} {
		if err := pub.Publish(context.Background(), chat.DomainEvent{Kind: kind, ConversationID: 5}); err != nil {
			t.Fatalf("Publish(%s) error = %v", kind, err)
		}
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := producer.Failures(); got != 1 {
		t.Errorf("Failures() = %d, want 1", got)
	}
}

// blockedProducer never accepts input.
type blockedProducer struct {
	sarama.AsyncProducer
	errors    chan *sarama.ProducerError
	successes chan *sarama.ProducerMessage
}

func (b *blockedProducer) Input() chan<- *sarama.ProducerMessage     { return nil }
func (b *blockedProducer) Errors() <-chan *sarama.ProducerError      { return b.errors }
func (b *blockedProducer) Successes() <-chan *sarama.ProducerMessage { return b.successes }
func (b *blockedProducer) AsyncClose() {
	close(b.errors)
	close(b.successes)
}

func TestAsyncProducer_PublishHonoursContext(t *testing.T) {
	bp := &blockedProducer{errors: make(chan *sarama.ProducerError), successes: make(chan *sarama.ProducerMessage)}
	producer := kafka.NewAsyncProducerFrom(bp, quietLogger())
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := producer.Publish(ctx, "chat.events", "5", []byte("{}"), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() error = %v, want context.DeadlineExceeded", err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
