// Modelmux server: serves the moderation API, routes every backend call
// through the model router, and persists telemetry across restarts.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeready-toolchain/modelmux/pkg/api"
	"github.com/codeready-toolchain/modelmux/pkg/cache"
	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
	"github.com/codeready-toolchain/modelmux/pkg/moderation"
	"github.com/codeready-toolchain/modelmux/pkg/ratelimit"
	"github.com/codeready-toolchain/modelmux/pkg/router"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./config.yaml"),
		"Path to configuration file")
	flag.Parse()

	// Load .env, if present
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting modelmux", "http_port", httpPort, "config", *configPath)

	// 1. Initialize configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize cache adapter
	cacheAdapter := cache.FromEnv(cfg.Cache)
	slog.Info("Cache adapter initialized", "type", cacheAdapter.Type())

	// 3. Initialize telemetry store (single writer, persisted state)
	store, err := telemetry.NewStore(cfg.DataDir, telemetry.SeedsFromRegistry(cfg.BackendRegistry))
	if err != nil {
		slog.Error("Failed to initialize telemetry store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 4. Create router and LLM client
	modelRouter := router.New(cfg.BackendRegistry, store, cfg.DefaultBackend)
	client := llm.NewHTTPClient(cfg.LLM)

	// 5. Wire the moderation service
	registry := prometheus.NewRegistry()
	metrics := moderation.NewMetrics(registry)
	var alerts moderation.AlertSink = moderation.NewLogSink()
	if webhook := moderation.NewWebhookSink(cfg.Moderation.AlertWebhookURL); webhook != nil {
		alerts = moderation.Fanout(alerts, webhook)
	}
	svc := moderation.NewService(cfg.Moderation, cacheAdapter, modelRouter, store, client, metrics, alerts)

	// 6. Create HTTP server with rate limiting
	limiter := ratelimit.NewLimiter(cacheAdapter, cfg.RateLimit)
	httpServer := api.NewServer(svc, store, cacheAdapter, limiter, registry)

	// 7. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Modelmux started successfully",
		"config", cfg.ConfigPath(),
		"backends", cfg.BackendRegistry.Len(),
		"default_backend", cfg.DefaultBackend)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: drain HTTP, then flush telemetry via the
	// deferred store.Close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if mem, ok := cacheAdapter.(*cache.Memory); ok {
		mem.Close()
	}

	slog.Info("Shutdown complete")
}
