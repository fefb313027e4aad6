// Package publisher hands validated chat events to Kafka for the indexer.
// Events are keyed by channel so one channel's events stay on one partition
// and are logged in the order they were accepted.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
)

type Publisher struct {
	producer kafka.Publisher
	now      func() time.Time
	logger   *slog.Logger
}

func New(producer kafka.Publisher) *Publisher {
	return &Publisher{
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest publishes one event. Unlike a database write there is nothing to
// fall back to, so a Kafka failure is returned to the caller.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	event := p.toEvent(req)
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing chat event from %s: %w", req.Event.Source, err)
	}
	channels := event.Value.(ingestion.ChatEvent).Channels
	p.logger.Debug("chat event published", "channels", channels, "action", req.Event.Action)
	return &ingestion.IngestResponse{Status: "accepted", Channels: channels, Accepted: 1}, nil
}

// IngestBatch publishes every event in one write. The batch is accepted or
// rejected as a whole.
func (p *Publisher) IngestBatch(ctx context.Context, req *ingestion.BatchRequest) (*ingestion.IngestResponse, error) {
	events := make([]kafka.Event, 0, len(req.Events))
	var channels []string
	for i := range req.Events {
		event := p.toEvent(&req.Events[i])
		channels = append(channels, event.Value.(ingestion.ChatEvent).Channels...)
		events = append(events, event)
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("publishing %d chat events: %w", len(events), err)
	}
	channels = slices.Compact(slices.Sorted(slices.Values(channels)))
	p.logger.Debug("chat event batch published", "count", len(events), "channels", channels)
	return &ingestion.IngestResponse{Status: "accepted", Channels: channels, Accepted: len(events)}, nil
}

func (p *Publisher) toEvent(req *ingestion.IngestRequest) kafka.Event {
	channels := slices.Compact(slices.Sorted(slices.Values(req.Channels)))
	return kafka.Event{
		Key: channels[0],
		Value: ingestion.ChatEvent{
			Channels:   channels,
			Event:      req.Event,
			IngestedAt: p.now().UTC(),
		},
	}
}
