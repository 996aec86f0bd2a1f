package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"caseflow.app/automation/common/logger"
	"caseflow.app/automation/common/metrics"
	"caseflow.app/automation/core/config"
	"caseflow.app/automation/core/db"
	"caseflow.app/automation/internal/engine"
	"caseflow.app/automation/internal/guard"
	"caseflow.app/automation/internal/queue"
	"caseflow.app/automation/internal/store"
	"caseflow.app/automation/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	if !cfg.Features.AutomationEnabled {
		slog.InfoContext(ctx, "automation disabled, exiting")
		return
	}

	slog.InfoContext(ctx, "automation consumer starting",
		"env", cfg.Env,
		"stream", cfg.Stream.Stream,
		"consumer_group", cfg.Stream.Group,
		"consumer_name", cfg.Stream.Consumer)

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Stream.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Stream.Stream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:     cfg.Stream.Stream,
		Group:      cfg.Stream.Group,
		Consumer:   cfg.Stream.Consumer,
		BatchSize:  cfg.Stream.BatchSize,
		Block:      cfg.Stream.Block,
		MinIdle:    cfg.Stream.IdleThreshold,
		ClaimBatch: cfg.Stream.ClaimBatch,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	var m metrics.Metrics = metrics.Noop{}
	if cfg.MetricsAddr != "" {
		m = metrics.NewProm("automation")
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
				slog.ErrorContext(ctx, "metrics listener stopped", "error", err)
			}
		}()
	}

	stores := store.NewTriggerStore(database)
	tenants := store.NewTenantStore(database)
	gateway := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.APIKey)
	dispatchGuard := guard.New(redisClient, guard.Config{
		LockTTL: cfg.Dispatch.LockTTL,
		DoneTTL: cfg.Dispatch.DoneTTL,
	})
	actors := worker.NewActorCache(tenants)

	w := worker.New(consumer, stores, dispatchGuard, gateway, actors, m, worker.Config{
		IdleThreshold: cfg.Stream.IdleThreshold,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()

	slog.InfoContext(ctx, "consumer initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "consumer terminated", "error", err)
			os.Exit(1)
		}
		return
	case <-quit:
	}

	slog.InfoContext(ctx, "shutting down consumer...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case <-done:
	}

	slog.InfoContext(ctx, "consumer shutdown complete")
}
