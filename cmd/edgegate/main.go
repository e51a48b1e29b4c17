// Command edgegate runs the OpenAI-compatible multi-provider gateway.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"edgegate/config"
	"edgegate/internal/core"
	"edgegate/internal/memory"
	"edgegate/internal/providers"
	"edgegate/internal/providers/gemini"
	"edgegate/internal/providers/openai"
	"edgegate/internal/providers/workersai"
	"edgegate/internal/routing"
	"edgegate/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store := newMemoryStore(cfg)
	defer func() {
		_ = store.Close() //nolint:errcheck
	}()

	router := providers.NewRouter(cfg, routing.NewResolver(cfg), store)
	router.Register(core.ProviderWorkersAI, workersai.New(cfg.WorkersAI.AccountID, cfg.WorkersAI.APIToken))
	router.Register(core.ProviderOpenAI, openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.StructuredModels))
	router.Register(core.ProviderGemini, gemini.New(cfg.Gemini.APIKey))

	srv := server.New(cfg, router)

	go func() {
		slog.Info("gateway listening", "port", cfg.Server.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// setupLogging installs the default slog handler: JSON in production,
// tint's pretty handler when LOG_FORMAT=pretty.
func setupLogging() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "pretty" {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// newMemoryStore picks the Redis store when a URL is configured, falling
// back to the in-process store when the URL is absent or the connection
// fails. Memory is an enrichment feature, never a startup blocker.
func newMemoryStore(cfg *config.Config) memory.Store {
	if cfg.Memory.RedisURL == "" {
		slog.Info("using in-process memory store")
		return memory.NewLocalStore()
	}

	store, err := memory.NewRedisStore(cfg.Memory.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable, using in-process memory store", "error", err)
		return memory.NewLocalStore()
	}
	return store
}
