package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/events"
	apphttp "fintrack/internal/http"
	"fintrack/internal/impexp"
	"fintrack/internal/kv"
	applog "fintrack/internal/log"
	"fintrack/internal/reconcile"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	kvResult, err := kv.Open(kv.Config{
		Type:         kv.BackendType(cfg.KVBackend),
		SQLiteDBPath: cfg.SQLiteDBPath,
	}, logger.Logger)
	if err != nil {
		logger.Error("Failed to open kv store", "error", err, "backend", cfg.KVBackend)
		os.Exit(1)
	}
	defer func() {
		if kvResult.Cleanup != nil {
			if err := kvResult.Cleanup(); err != nil {
				logger.Error("KV store cleanup failed", "error", err)
			}
		}
	}()

	registry := storage.NewRegistryStore(kvResult.Store)
	mirror := storage.NewLedgerStore(kvResult.Store)
	sessions := storage.NewSessionStore(kvResult.Store)

	engine := reconcile.NewEngine(registry, mirror, reconcile.Config{Interval: cfg.SyncInterval})
	merger := impexp.NewMerger(registry, engine)

	// AMQP is optional; without a broker events stay in-process.
	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without broker", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}
	bus := events.NewBus(publisher)

	tracker := services.NewTracker(registry, mirror, sessions, engine, merger, bus, cfg.TopCategories)

	cacheManager := cache.NewManager()
	cacheManager.Register(tracker.OverviewCache())
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedTestUser {
		tracker.SeedTestUser(ctx)
	}
	if user, ok := tracker.Resume(ctx); ok {
		logger.Info("Restored previous session", "username", user.Username)
	}

	srv := apphttp.NewServer(":"+cfg.Port, tracker, logger.WithComponent(applog.ComponentHTTP))
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := engine.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return engine.Stop(stopCtx)
	})

	g.Go(func() error {
		logger.Info("Starting fintrack server", "port", cfg.Port, "kv_backend", cfg.KVBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
