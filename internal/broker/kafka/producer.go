// Package kafka publishes chat domain events to Kafka through sarama.
package kafka

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
)

// Producer is a synchronous Kafka producer.
type Producer struct {
	sync sarama.SyncProducer
}

func producerConfig(cfg *sarama.Config) *sarama.Config {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer connects an idempotent producer to brokers.
func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	cfg = producerConfig(cfg)
	cfg.Producer.Return.Successes = true
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync}, nil
}

// NewProducerFrom wraps an existing sarama.SyncProducer.
func NewProducerFrom(sync sarama.SyncProducer) *Producer {
	return &Producer{sync: sync}
}

func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.sync.SendMessage(newMessage(topic, key, payload, headers))
	return err
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

// AsyncProducer hands messages to a sarama.AsyncProducer without waiting for
// broker acks. Delivery failures are logged and counted.
type AsyncProducer struct {
	async    sarama.AsyncProducer
	logger   *slog.Logger
	failures atomic.Int64
	wg       sync.WaitGroup
}

// NewAsyncProducer connects an idempotent asynchronous producer to brokers.
func NewAsyncProducer(brokers []string, cfg *sarama.Config, logger *slog.Logger) (*AsyncProducer, error) {
	cfg = producerConfig(cfg)
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	async, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewAsyncProducerFrom(async, logger), nil
}

// NewAsyncProducerFrom wraps an existing sarama.AsyncProducer and starts
// draining its result channels.
func NewAsyncProducerFrom(async sarama.AsyncProducer, logger *slog.Logger) *AsyncProducer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &AsyncProducer{async: async, logger: logger}
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for perr := range async.Errors() {
			p.failures.Add(1)
			p.logger.Warn("kafka delivery failed", "topic", perr.Msg.Topic, "error", perr.Err)
		}
	}()
	go func() {
		defer p.wg.Done()
		for range async.Successes() {
		}
	}()
	return p
}

// Publish enqueues the message. It only blocks while the producer's input
// buffer is full, and gives up when ctx ends.
func (p *AsyncProducer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	select {
	case p.async.Input() <- newMessage(topic, key, payload, headers):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failures returns the number of messages the brokers rejected so far.
func (p *AsyncProducer) Failures() int64 {
	return p.failures.Load()
}

// Close flushes buffered messages and waits for their results.
func (p *AsyncProducer) Close() error {
	p.async.AsyncClose()
	p.wg.Wait()
	return nil
}

func newMessage(topic, key string, payload []byte, headers map[string]string) *sarama.ProducerMessage {
	var hs []sarama.RecordHeader
	for k, v := range headers {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
}
