package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/keylock/internal/api"
	"github.com/ignite/keylock/internal/app"
	"github.com/ignite/keylock/internal/auth"
	"github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		logger.Error("pre-flight check failed", "error", err)
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

	handlers := api.NewHandlers(engine.Coordinator, engine.Keys, engine.Violations, engine.Participations, cfg.Engine.RequestTimeout())
	health := api.NewHealthChecker(engine.DB, engine.Redis, engine.Keys, cfg.Keys.Backend, cfg.Sweeper.OrphanLockAge())
	guard, err := auth.NewAdminGuard(cfg.Server.AdminTokens)
	if err != nil {
		logger.Error("invalid admin tokens", "error", err)
		os.Exit(1)
	}
	if !guard.Enabled() {
		logger.Warn("no admin tokens configured; admin endpoints are open")
	}
	server := api.NewServer(cfg.Server, handlers, health, guard)

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr(), "key_backend", string(cfg.Keys.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
