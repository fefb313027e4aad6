package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
)

// Event is one message to publish. Events sharing a Key land on the same
// partition, which keeps one channel's chat events in order.
type Event struct {
	Key   string
	Value any
}

// Publisher is the write side of a topic.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON-encoded events to one topic and waits for every
// in-sync replica to acknowledge them.
type Producer struct {
	writer writer
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic)
}

func newProducer(w writer, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so an unencodable
// event fails the whole batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, len(events))
	size := 0
	for i, event := range events {
		msg, err := encode(event)
		if err != nil {
			return err
		}
		messages[i] = msg
		size += len(msg.Value)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("publish failed", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d message(s) to %s: %w", len(messages), p.topic, err)
	}
	p.logger.Debug("published", "count", len(messages), "bytes", size)
	return nil
}

func encode(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value for key %q: %w", event.Key, err)
	}
	return kafka.Message{Key: []byte(event.Key), Value: value}, nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
