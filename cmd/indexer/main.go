// Command indexer consumes chat events from Kafka, appends them to the
// message log and links their words into the phonetic index. It has no API
// of its own: health checks and /metrics share the server port.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-reindex-on-start]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	reindexOnStart := flag.Bool("reindex-on-start", false, "rebuild every channel before consuming")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "group", cfg.Kafka.ConsumerGroup)

	m := metrics.New()

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

	if *reindexOnStart {
		notifier := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReindexComplete)
		summary, err := core.Driver(cfg.Reindex, m, auditStore, notifier).ReindexAll(ctx)
		notifier.Close()
		if err != nil {
			slog.Error("startup reindex interrupted", "error", err)
			os.Exit(1)
		}
		slog.Info("startup reindex finished",
			"channels", summary.Channels,
			"failed", len(summary.Failed),
			"duration", summary.Duration(),
		)
	}

	breaker := resilience.NewCircuitBreaker("message-log", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	h := consumer.NewHandler(core.Log, core.Engine, consumer.WithMetrics(m), consumer.WithBreaker(breaker))
	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ChatEvents, h.Handle)

	checker := health.NewChecker()
	checker.Register("redis", health.PingCheck(core.Redis, 250*time.Millisecond))
	checker.Register("message_log_breaker", health.BreakerCheck(breaker))
	shutdownServer := metrics.StartServer(cfg.Server.Port,
		metrics.Route{Pattern: "GET /health/live", Handler: checker.LiveHandler()},
		metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
	)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.ChatEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdownServer(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("indexer service stopped")
}
