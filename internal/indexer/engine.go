// Package indexer links chat messages to the phonetic codes of their words.
// The Engine is stateless apart from its collaborators: every call normalizes
// text, encodes each word, and adds the message id under each distinct code.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/phonetic"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
)

type Engine struct {
	normalizer *tokenizer.Normalizer
	encoder    phonetic.Encoder
	store      store.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithMetrics records indexing counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(normalizer *tokenizer.Normalizer, encoder phonetic.Encoder, s store.Store, opts ...Option) *Engine {
	e := &Engine{
		normalizer: normalizer,
		encoder:    encoder,
		store:      s,
		logger:     slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IndexMessage indexes the message body. It returns the number of distinct
// codes linked to the message.
func (e *Engine) IndexMessage(ctx context.Context, msg chat.Message) (int, error) {
	return e.IndexContent(ctx, msg, msg.Body)
}

// IndexContent indexes content under msg's channel and id, for text that
// belongs to an existing message but is not its body. Words the encoder
// rejects are skipped; a store failure aborts and is returned.
func (e *Engine) IndexContent(ctx context.Context, msg chat.Message, content string) (int, error) {
	results := e.Analyze(content)
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			e.logger.Debug("skipping unencodable word",
				"channel", msg.Channel,
				"message_id", msg.ID,
				"word", r.Token,
				"error", r.Err,
			)
		}
	}
	codes := phonetic.DistinctCodes(results)

	for i, code := range codes {
		if err := e.store.AddMessageToCode(ctx, msg.Channel, code, msg.ID); err != nil {
			if e.metrics != nil {
				e.metrics.StoreErrorsTotal.WithLabelValues("add_message_to_code").Inc()
				e.metrics.CodesLinkedTotal.Add(float64(i))
			}
			return i, fmt.Errorf("indexing message %s in %s: %w", msg.ID, msg.Channel, err)
		}
	}

	if e.metrics != nil {
		e.metrics.MessagesIndexedTotal.Inc()
		e.metrics.CodesLinkedTotal.Add(float64(len(codes)))
		e.metrics.EncodingFailuresTotal.Add(float64(failed))
	}
	e.logger.Debug("message indexed",
		"channel", msg.Channel,
		"message_id", msg.ID,
		"words", len(results),
		"codes", len(codes),
		"encoding_failures", failed,
	)
	return len(codes), nil
}

// Analyze normalizes text and encodes every word, one Result per word.
func (e *Engine) Analyze(text string) []phonetic.Result {
	return phonetic.Encode(e.encoder, e.normalizer.Tokens(text))
}

// Store returns the index store the engine writes to.
func (e *Engine) Store() store.Store {
	return e.store
}
