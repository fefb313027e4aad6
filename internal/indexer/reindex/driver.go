package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/resilience"
)

// Rebuilder rebuilds one channel. *Coordinator implements it.
type Rebuilder interface {
	Rebuild(ctx context.Context, channel string) (Stats, error)
}

// ChannelLister lists every channel known to the message log.
type ChannelLister interface {
	Channels(ctx context.Context) ([]string, error)
}

// Summary is the outcome of a multi-channel reindex. Failed maps a channel to
// the error that stopped its rebuild.
type Summary struct {
	Channels   int               `json:"channels"`
	Succeeded  []string          `json:"succeeded"`
	Failed     map[string]string `json:"failed,omitempty"`
	Stats      []Stats           `json:"-"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (s *Summary) OK() bool {
	return len(s.Failed) == 0
}

func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Driver reindexes many channels with bounded parallelism, a start-rate
// throttle, a per-channel timeout and retries.
type Driver struct {
	rebuilder Rebuilder
	channels  ChannelLister
	cfg       config.ReindexConfig
	audit     *audit.Store
	notifier  kafka.Publisher
	logger    *slog.Logger
}

type DriverOption func(*Driver)

// WithAudit records one row per rebuilt channel.
func WithAudit(s *audit.Store) DriverOption {
	return func(d *Driver) { d.audit = s }
}

// WithNotifier publishes the Summary of every run.
func WithNotifier(p kafka.Publisher) DriverOption {
	return func(d *Driver) { d.notifier = p }
}

func NewDriver(rebuilder Rebuilder, channels ChannelLister, cfg config.ReindexConfig, opts ...DriverOption) *Driver {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	d := &Driver{
		rebuilder: rebuilder,
		channels:  channels,
		cfg:       cfg,
		logger:    slog.Default().With("component", "reindex-driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReindexAll rebuilds every channel in the channel registry.
func (d *Driver) ReindexAll(ctx context.Context) (*Summary, error) {
	channels, err := d.channels.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return d.Reindex(ctx, channels)
}

// Reindex rebuilds the given channels. Individual channel failures are
// reported in the Summary; the returned error is non-nil only when ctx ends
// before every channel was attempted.
func (d *Driver) Reindex(ctx context.Context, channels []string) (*Summary, error) {
	channels = slices.Compact(slices.Sorted(slices.Values(channels)))
	summary := &Summary{
		Channels:  len(channels),
		Succeeded: []string{},
		Failed:    map[string]string{},
		StartedAt: time.Now(),
	}
	d.logger.Info("reindex started", "channels", len(channels), "concurrency", d.cfg.Concurrency)

	limit := rate.Inf
	if d.cfg.RatePerSecond > 0 {
		limit = rate.Limit(d.cfg.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, max(d.cfg.Burst, 1))

	var (
		mu   sync.Mutex
		runs []audit.Run
	)
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, channel := range channels {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			stats, err := d.reindexOne(ctx, channel)

			mu.Lock()
			defer mu.Unlock()
			run := audit.Run{
				Channel:    channel,
				Success:    err == nil,
				Entries:    stats.Entries,
				Indexed:    stats.Indexed,
				Skipped:    stats.Skipped + stats.Malformed,
				Codes:      stats.CodesLinked,
				StartedAt:  stats.StartedAt,
				FinishedAt: stats.FinishedAt,
			}
			if err != nil {
				summary.Failed[channel] = err.Error()
				run.Error = err.Error()
				d.logger.Error("channel reindex failed", "channel", channel, "error", err)
			} else {
				summary.Succeeded = append(summary.Succeeded, channel)
			}
			summary.Stats = append(summary.Stats, stats)
			runs = append(runs, run)
			return nil
		})
	}
	waitErr := g.Wait()
	summary.FinishedAt = time.Now()
	slices.Sort(summary.Succeeded)
	slices.SortFunc(summary.Stats, func(a, b Stats) int {
		return strings.Compare(a.Channel, b.Channel)
	})

	// the run happened even if the caller gave up on it
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	d.report(reportCtx, summary, runs)

	if err := errors.Join(waitErr, ctx.Err()); err != nil {
		return summary, fmt.Errorf("reindex interrupted after %d of %d channels: %w",
			len(summary.Succeeded)+len(summary.Failed), len(channels), err)
	}
	d.logger.Info("reindex finished",
		"channels", summary.Channels,
		"succeeded", len(summary.Succeeded),
		"failed", len(summary.Failed),
		"duration", summary.Duration(),
	)
	return summary, nil
}

func (d *Driver) reindexOne(ctx context.Context, channel string) (Stats, error) {
	var (
		mu   sync.Mutex
		last Stats
	)
	name := "reindex " + channel
	err := resilience.Retry(ctx, name, resilience.RetryConfig{MaxAttempts: d.cfg.MaxAttempts}, func() error {
		return resilience.WithTimeout(ctx, d.cfg.ChannelTimeout, name, func(ctx context.Context) error {
			stats, err := d.rebuilder.Rebuild(ctx, channel)
			mu.Lock()
			last = stats
			mu.Unlock()
			if errors.Is(err, apperrors.ErrMalformedLogEntry) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	mu.Lock()
	defer mu.Unlock()
	if last.Channel == "" {
		last = Stats{Channel: channel, StartedAt: time.Now(), FinishedAt: time.Now()}
	}
	return last, err
}

func (d *Driver) report(ctx context.Context, summary *Summary, runs []audit.Run) {
	if err := d.audit.Record(ctx, runs...); err != nil {
		d.logger.Error("failed to record reindex runs", "error", err)
	}
	if d.notifier == nil {
		return
	}
	event := kafka.Event{Key: "reindex", Value: summary}
	if err := d.notifier.Publish(ctx, event); err != nil {
		d.logger.Error("failed to publish reindex summary", "error", err)
	}
}
