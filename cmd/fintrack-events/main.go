// fintrack-events tails the ledger change stream from the broker. It is
// a debugging companion for multi-process setups: run it next to the
// server and watch pushes, pulls and merges as they happen.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	"fintrack/internal/events"
	applog "fintrack/internal/log"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: applog.ComponentEvents})
	applog.SetDefault(logger)

	cfg := config.Load()
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the event tail")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Tailing ledger events",
		"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	err = client.Consume(ctx, func(e events.Event) error {
		logger.Info("Ledger event",
			"username", e.Username, "kind", e.Kind, "timestamp", e.Timestamp)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Event tail stopped")
}
