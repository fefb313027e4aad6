// Command ingestion accepts chat events over HTTP and publishes them to
// Kafka for the indexer.
//
//	POST /api/v1/events        one event, logged to one or more channels
//	POST /api/v1/events/batch  several events in one Kafka write
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion/publisher"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ChatEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.ChatEvents)

	h := handler.New(publisher.New(producer), m)
	checker := health.NewChecker()
	mux := http.NewServeMux()
	h.Routes(mux)
	checker.Routes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m), middleware.Timeout(cfg.Server.WriteTimeout)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
