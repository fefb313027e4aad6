// Package consumer turns chat events read from Kafka into message log
// entries and index links. The log write is the commit point: once an event
// is logged, an indexing failure is repaired by the channel's next reindex.
// Log writes are keyed by a digest of the Kafka payload, so a retried or
// redelivered event lands under the id it was first given.
package consumer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/resilience"
)

// Appender writes events to the message log. Reserve must return the same
// id for the same key and Write must be idempotent.
type Appender interface {
	Reserve(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, id string, event chat.Event, channels []string) error
}

type Indexer interface {
	IndexMessage(ctx context.Context, msg chat.Message) (int, error)
}

type Handler struct {
	log     Appender
	engine  Indexer
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithRetry overrides how often a failed log write is retried before the
// message is left uncommitted.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(h *Handler) { h.retry = cfg }
}

// WithBreaker replaces the default breaker guarding log appends.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(h *Handler) { h.breaker = cb }
}

func NewHandler(log Appender, engine Indexer, opts ...Option) *Handler {
	h := &Handler{
		log:    log,
		engine: engine,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "index-consumer"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.breaker == nil {
		h.breaker = resilience.NewCircuitBreaker("message-log", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange:    h.recordState,
		})
	}
	return h
}

// Handle implements kafka.MessageHandler. Undecodable events are dropped.
func (h *Handler) Handle(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[ingestion.ChatEvent](value)
	if err != nil {
		h.logger.Error("dropping undecodable chat event", "key", string(key), "error", err)
		h.count("malformed")
		return nil
	}
	channels := slices.DeleteFunc(slices.Clone(event.Channels), func(c string) bool { return !chat.IsChannel(c) })
	if len(channels) == 0 {
		h.logger.Warn("dropping chat event without channels", "key", string(key), "source", event.Event.Source)
		h.count("malformed")
		return nil
	}

	digest := sha256.Sum256(value)
	var id string
	err = h.guarded(ctx, "reserve-message-id", func() error {
		var reserveErr error
		id, reserveErr = h.log.Reserve(ctx, hex.EncodeToString(digest[:]))
		return reserveErr
	})
	if err != nil {
		return fmt.Errorf("reserving id for event from %s: %w", event.Event.Source, err)
	}
	err = h.guarded(ctx, "write-chat-event", func() error {
		return h.log.Write(ctx, id, event.Event, channels)
	})
	if err != nil {
		return fmt.Errorf("writing event %s to %v: %w", id, channels, err)
	}
	h.count(string(event.Event.Action))

	text, ok := event.Event.Text()
	if !ok {
		return nil
	}
	for _, channel := range channels {
		msg := chat.Message{Channel: channel, ID: id, Body: text, CreatedAt: event.Event.CreatedAt()}
		if _, err := h.engine.IndexMessage(ctx, msg); err != nil {
			h.logger.Error("indexing failed, channel needs a reindex",
				"channel", channel,
				"message_id", id,
				"error", err,
			)
		}
	}
	return nil
}

// guarded retries fn behind the message-log breaker.
func (h *Handler) guarded(ctx context.Context, name string, fn func() error) error {
	return resilience.Retry(ctx, name, h.retry, func() error {
		return h.breaker.Execute(fn)
	})
}

func (h *Handler) count(action string) {
	if h.metrics != nil {
		h.metrics.EventsIngestedTotal.WithLabelValues(action).Inc()
	}
}

func (h *Handler) recordState(name string, to resilience.State) {
	if h.metrics != nil {
		h.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}
