package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
)

// Event is anything the collector can publish. Events are keyed by type so
// one consumer partition sees every event of a kind in order.
type Event interface {
	Kind() EventType
}

// Collector buffers events and publishes them in batches from one
// goroutine. Track never blocks: when the buffer is full the event is
// dropped and counted.
type Collector struct {
	producer   kafka.Publisher
	events     chan Event
	batchSize  int
	flushEvery time.Duration
	dropped    atomic.Int64
	logger     *slog.Logger
	done       chan struct{}
}

func NewCollector(producer kafka.Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer:   producer,
		events:     make(chan Event, bufferSize),
		batchSize:  100,
		flushEvery: time.Second,
		logger:     slog.Default().With("component", "analytics-collector"),
		done:       make(chan struct{}),
	}
}

// Start launches the publish loop. A batch goes out when it is full or
// flushEvery has passed. Cancelling ctx publishes what is buffered and
// stops the loop.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.events), "batch_size", c.batchSize)
}

func (c *Collector) Track(event Event) {
	select {
	case c.events <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped is the number of events lost to a full buffer.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events, publishes the rest and waits for the loop.
// Start must have been called and Track must not be called afterwards.
func (c *Collector) Close() {
	close(c.events)
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = append(batch, kafka.Event{Key: string(event.Kind()), Value: event})
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case event, ok := <-c.events:
					if !ok {
						drained = true
						continue
					}
					batch = append(batch, kafka.Event{Key: string(event.Kind()), Value: event})
				default:
					drained = true
				}
			}
			c.finalFlush(batch)
			return
		}
	}
}

// finalFlush publishes on a fresh context because the loop's context may
// already be cancelled.
func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.flush(ctx, batch)
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics batch lost", "events", len(batch), "error", err)
	}
	return batch[:0]
}
