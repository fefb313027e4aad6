// Command searcher serves phonetic search over the chat log, channel
// listings, and on-demand reindexing.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	core, err := bootstrap.NewCore(cfg, m)
	if err != nil {
		slog.Error("failed to initialize index", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditStore, closeAudit := bootstrap.OpenAudit(ctx, cfg.Postgres)
	defer closeAudit()

	notifier := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReindexComplete)
	defer notifier.Close()

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	var queryCache *cache.QueryCache
	if cfg.Search.CacheTTL > 0 {
		queryCache = cache.New(core.Redis, cfg.Search.CacheTTL)
		slog.Info("search cache enabled", "ttl", cfg.Search.CacheTTL)
	}

	checker := health.NewChecker()
	checker.Register("redis", health.PingCheck(core.Redis, 250*time.Millisecond))
	if auditStore.Enabled() {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			// the audit trail is optional, so losing it only degrades the service
			res := health.PingCheck(auditStore, 0)(ctx)
			if res.Status == health.StatusDown {
				res.Status = health.StatusDegraded
			}
			return res
		})
	}

	h := handler.New(handler.Deps{
		Searcher:     executor.New(core.Index, core.Log),
		Analyzer:     core.Engine,
		Catalog:      core.Log,
		Cache:        queryCache,
		Collector:    collector,
		Reindexer:    core.Driver(cfg.Reindex, m, auditStore, notifier),
		History:      auditStore,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	checker.Routes(mux)

	// reindex requests outlive the request timeout, so only search-path
	// routes are wrapped in it
	api := middleware.Timeout(cfg.Server.WriteTimeout)(mux)
	root := http.NewServeMux()
	root.Handle("/", api)
	root.Handle("POST /api/v1/reindex", mux)
	root.Handle("POST /api/v1/channels/{channel}/reindex", mux)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     middleware.Chain(root, middleware.RequestID, middleware.Metrics(m)),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
