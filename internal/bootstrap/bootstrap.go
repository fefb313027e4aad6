// Package bootstrap builds the pieces every chatlog binary shares: the Redis
// connection, the message log, the phonetic index and its engine, and the
// optional reindex audit trail.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/phonetic"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/reindex"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/messagelog"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
)

type Core struct {
	Redis  *pkgredis.Client
	Log    *messagelog.Log
	Index  *store.RedisStore
	Engine *indexer.Engine
}

// NewCore connects to Redis and builds the indexing engine. m may be nil.
func NewCore(cfg *config.Config, m *metrics.Metrics) (*Core, error) {
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	core, err := Wrap(client, cfg.Indexer, m)
	if err != nil {
		client.Close()
		return nil, err
	}
	return core, nil
}

// Wrap builds a Core around an existing client.
func Wrap(client *pkgredis.Client, cfg config.IndexerConfig, m *metrics.Metrics) (*Core, error) {
	encoder, err := phonetic.NewFromSize(phonetic.DoubleMetaphone{}, cfg.EncoderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building encoder: %w", err)
	}
	var opts []indexer.Option
	if m != nil {
		opts = append(opts, indexer.WithMetrics(m))
	}
	index := store.NewRedisStore(client)
	return &Core{
		Redis:  client,
		Log:    messagelog.New(client),
		Index:  index,
		Engine: indexer.NewEngine(tokenizer.New(cfg), encoder, index, opts...),
	}, nil
}

func (c *Core) Close() error {
	return c.Redis.Close()
}

// Driver builds the reindex coordinator and driver. auditStore and notifier
// may be nil.
func (c *Core) Driver(cfg config.ReindexConfig, m *metrics.Metrics, auditStore *audit.Store, notifier kafka.Publisher) *reindex.Driver {
	// a timed-out attempt rejoins the running pass, so the pass may use the
	// driver's whole retry window
	copts := []reindex.Option{
		reindex.SkipMalformed(cfg.SkipMalformed),
		reindex.PassTimeout(cfg.ChannelTimeout * time.Duration(max(cfg.MaxAttempts, 1))),
	}
	if m != nil {
		copts = append(copts, reindex.WithMetrics(m))
	}
	dopts := []reindex.DriverOption{reindex.WithAudit(auditStore)}
	if notifier != nil {
		dopts = append(dopts, reindex.WithNotifier(notifier))
	}
	return reindex.NewDriver(reindex.NewCoordinator(c.Engine, c.Log, copts...), c.Log, cfg, dopts...)
}

// OpenAudit connects to PostgreSQL when it is configured. An unreachable
// database disables the audit trail instead of failing startup; the returned
// close function is always safe to call.
func OpenAudit(ctx context.Context, cfg config.PostgresConfig) (*audit.Store, func()) {
	if !cfg.Enabled() {
		return nil, func() {}
	}
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		slog.Warn("postgres unavailable, reindex audit disabled", "error", err)
		return nil, func() {}
	}
	trail := audit.NewStore(db)
	if err := trail.EnsureSchema(ctx); err != nil {
		slog.Warn("reindex audit schema setup failed, audit disabled", "error", err)
		db.Close()
		return nil, func() {}
	}
	return trail, func() { db.Close() }
}
