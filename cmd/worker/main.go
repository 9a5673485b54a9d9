package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ignite/keylock/internal/app"
	"github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/ignite/keylock/internal/worker"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if cfg.Keys.Backend == config.BackendMemory {
		logger.Error("the worker cannot reach in-memory keys; use the postgres or redis key backend")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	sweepLock, err := engine.LeaderLock("cooloff-sweeper")
	if err != nil {
		logger.Error("leader lock unavailable", "error", err)
		os.Exit(1)
	}
	reapLock, err := engine.LeaderLock("orphan-lock-reaper")
	if err != nil {
		logger.Error("leader lock unavailable", "error", err)
		os.Exit(1)
	}

	sweeper := worker.NewCooloffSweeper(engine.Keys, engine.Violations, sweepLock,
		cfg.Sweeper.Interval(), cfg.Sweeper.ViolationExpiry())
	reaper := worker.NewOrphanLockReaper(engine.Keys, engine.Participations, reapLock,
		0, cfg.Sweeper.OrphanLockAge())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sweeper.Start(ctx) }()
	go func() { defer wg.Done(); reaper.Start(ctx) }()
	logger.Info("worker running", "key_backend", string(cfg.Keys.Backend))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
