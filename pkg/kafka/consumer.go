// Package kafka carries chat events from the ingestion service to the indexer
// and reindex notifications to whoever listens, over segmentio/kafka-go.
// Payloads are JSON.
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

// MessageHandler processes one message. A non-nil error means the message
// was not applied; the consumer redelivers it before moving past its offset.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// reader is the part of *kafka.Reader the consume loop needs.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds one topic to a MessageHandler, committing each offset only
// after the handler accepted the message. Committing an offset also commits
// everything before it on the partition, so a failed message blocks its
// partition and is retried with backoff instead of being skipped.
type Consumer struct {
	reader     reader
	handler    MessageHandler
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1e3,
		MaxBytes: 10e6,
		// a new group replays the topic rather than skipping to the tail
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     r,
		handler:    handler,
		logger:     slog.Default().With("component", "kafka-consumer", "topic", topic),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.logger.Error("fetch failed", "error", err)
			if !sleep(ctx, c.minBackoff) {
				return c.reader.Close()
			}
			continue
		}
		if !c.deliver(ctx, msg) {
			return c.reader.Close()
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			// the next successful commit covers this offset too
			c.logger.Warn("commit failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// deliver hands msg to the handler until it succeeds. It returns false if
// ctx ends first.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) bool {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("message applied after redelivery",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"attempts", attempt,
				)
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("handler failed, redelivering",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
