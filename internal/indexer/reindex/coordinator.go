// Package reindex rebuilds a channel's phonetic index from the message log.
// A rebuild is destructive: the channel's registry and every code set it
// names are deleted before the log is replayed through the indexing engine.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/messagelog"
	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
)

// LogReader returns a channel's full message log as id -> raw payload.
type LogReader interface {
	Snapshot(ctx context.Context, channel string) (map[string]string, error)
}

// Stats describes one completed or aborted channel rebuild.
type Stats struct {
	Channel     string
	PriorCodes  int
	Entries     int
	Indexed     int
	Skipped     int
	Malformed   int
	CodesLinked int
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (s Stats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Coordinator rebuilds channel indexes. Concurrent rebuilds of the same
// channel within one process share a single pass; rebuilds in other
// processes, and appends racing a rebuild, are not coordinated.
type Coordinator struct {
	engine        *indexer.Engine
	log           LogReader
	skipMalformed bool
	metrics       *metrics.Metrics
	passTimeout   time.Duration
	flight        singleflight.Group
	logger        *slog.Logger
}

type Option func(*Coordinator)

// SkipMalformed makes unparsable log entries count as skipped instead of
// aborting the rebuild.
func SkipMalformed(skip bool) Option {
	return func(c *Coordinator) { c.skipMalformed = skip }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// PassTimeout bounds one shared rebuild pass. Zero means no bound.
func PassTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.passTimeout = d }
}

func NewCoordinator(engine *indexer.Engine, log LogReader, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine: engine,
		log:    log,
		logger: slog.Default().With("component", "reindex"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReindexChannel rebuilds channel's index and reports whether the full pass
// completed. A store failure or, unless skipping is enabled, a malformed log
// entry aborts the pass and is returned with false.
func (c *Coordinator) ReindexChannel(ctx context.Context, channel string) (bool, error) {
	if _, err := c.Rebuild(ctx, channel); err != nil {
		return false, err
	}
	return true, nil
}

// Rebuild is ReindexChannel returning the statistics of the pass.
//
// The pass runs detached from every caller's cancellation, bounded only by
// PassTimeout, because it starts by deleting the index and a pass abandoned
// halfway leaves the channel unsearchable. A caller whose ctx ends stops
// waiting and gets ctx.Err() while the pass carries on; a later call for
// the same channel joins that pass instead of starting another.
func (c *Coordinator) Rebuild(ctx context.Context, channel string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{Channel: channel}, err
	}
	results := c.flight.DoChan(channel, func() (any, error) {
		passCtx := context.WithoutCancel(ctx)
		if c.passTimeout > 0 {
			var cancel context.CancelFunc
			passCtx, cancel = context.WithTimeout(passCtx, c.passTimeout)
			defer cancel()
		}
		return c.rebuild(passCtx, channel)
	})
	select {
	case res := <-results:
		if res.Shared {
			c.logger.Debug("joined in-flight reindex", "channel", channel)
		}
		return res.Val.(Stats), res.Err
	case <-ctx.Done():
		c.logger.Warn("stopped waiting for reindex, pass continues", "channel", channel, "reason", ctx.Err())
		return Stats{Channel: channel}, ctx.Err()
	}
}

func (c *Coordinator) rebuild(ctx context.Context, channel string) (stats Stats, err error) {
	logger := c.logger.With("channel", channel)
	stats = Stats{Channel: channel, StartedAt: time.Now()}
	defer func() {
		stats.FinishedAt = time.Now()
		c.observe(stats, err)
	}()

	s := c.engine.Store()

	codes, err := s.ChannelCodes(ctx, channel)
	if err != nil {
		return stats, fmt.Errorf("reading registry of %s: %w", channel, err)
	}
	stats.PriorCodes = len(codes)

	if err := s.DeleteChannelRegistry(ctx, channel); err != nil {
		return stats, fmt.Errorf("clearing registry of %s: %w", channel, err)
	}
	for _, code := range codes {
		if err := s.DeleteCodeSet(ctx, channel, code); err != nil {
			return stats, fmt.Errorf("clearing code %s of %s: %w", code, channel, err)
		}
	}
	logger.Debug("index cleared", "codes", len(codes))

	entries, err := c.log.Snapshot(ctx, channel)
	if err != nil {
		return stats, fmt.Errorf("reading log of %s: %w", channel, err)
	}
	stats.Entries = len(entries)

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, chat.CompareIDs)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry, err := messagelog.DecodeEntry(entries[id])
		if err != nil {
			if c.skipMalformed {
				stats.Malformed++
				logger.Warn("skipping malformed log entry", "message_id", id, "error", err)
				continue
			}
			return stats, fmt.Errorf("replaying %s: entry %s: %w", channel, id, err)
		}
		if !entry.HasText {
			stats.Skipped++
			continue
		}
		n, err := c.engine.IndexMessage(ctx, chat.Message{
			Channel:   channel,
			ID:        id,
			Body:      entry.Text,
			CreatedAt: entry.Time,
		})
		stats.CodesLinked += n
		if err != nil {
			return stats, fmt.Errorf("replaying %s: %w", channel, err)
		}
		stats.Indexed++
	}

	logger.Info("channel reindexed",
		"prior_codes", stats.PriorCodes,
		"entries", stats.Entries,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"malformed", stats.Malformed,
		"codes_linked", stats.CodesLinked,
		"duration", time.Since(stats.StartedAt),
	)
	return stats, nil
}

func (c *Coordinator) observe(stats Stats, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, apperrors.ErrMalformedLogEntry):
		status = "malformed"
	case err != nil:
		status = "failure"
	}
	c.metrics.ReindexRunsTotal.WithLabelValues(status).Inc()
	c.metrics.ReindexDuration.Observe(stats.Duration().Seconds())
	c.metrics.ReindexMessagesTotal.WithLabelValues("indexed").Add(float64(stats.Indexed))
	c.metrics.ReindexMessagesTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))
	c.metrics.ReindexMessagesTotal.WithLabelValues("malformed").Add(float64(stats.Malformed))
}
