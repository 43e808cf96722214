// Package main is the entrypoint for the chaos plan API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harora-WM/chaos-engineering-api/internal/api"
	"github.com/harora-WM/chaos-engineering-api/internal/api/handler"
	mw "github.com/harora-WM/chaos-engineering-api/internal/api/middleware"
	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
	"github.com/harora-WM/chaos-engineering-api/internal/cache"
	"github.com/harora-WM/chaos-engineering-api/internal/config"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/provider"
	"github.com/harora-WM/chaos-engineering-api/internal/opensearch"
	"github.com/harora-WM/chaos-engineering-api/internal/plan"
	"github.com/harora-WM/chaos-engineering-api/internal/prompt"
	"github.com/harora-WM/chaos-engineering-api/internal/store"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"model_provider", cfg.Model.Provider,
		"model_id", cfg.Model.ModelID(),
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional run history
	var st store.Store
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		st = store.NewPostgresStore(pool)
	} else {
		slog.Info("run history disabled: DATABASE_URL not set")
	}

	// 3. Optional rate limiting
	var rc cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		rc = redisCache
	} else {
		slog.Info("rate limiting disabled: REDIS_URL not set")
	}

	// 4. Model client for the configured provider
	model, err := provider.NewModel(ctx, cfg.Model)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}
	slog.Info("model client initialized", "provider", model.Name(), "model_id", model.ModelID())

	// 5. Build router with dependencies
	router := newRouter(cfg, st, rc,
		provider.NewFactory(cfg.Model, model),
		opensearch.NewFactory(cfg.OpenSearch.Timeout),
	)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Blocking generation with retries runs for minutes.
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newRouter wires handlers and middleware. st and c may be nil.
func newRouter(cfg *config.Config, st store.Store, c cache.Cache, invokers provider.Factory, clients opensearch.Factory) http.Handler {
	defaults := models.OpenSearchConnection{
		Endpoint: cfg.OpenSearch.Endpoint,
		Username: cfg.OpenSearch.Username,
		Password: cfg.OpenSearch.Password,
	}
	builder := prompt.NewBuilder(prompt.Options{MaxMessageBytes: cfg.Prompt.MaxMessageBytes})

	osh := handler.NewOpenSearchHandler(clients, defaults, builder)
	mh := handler.NewModelHandler(invokers)
	runs := handler.NewRunsHandler(st)

	var recorder plan.RunRecorder
	if st != nil {
		recorder = st
	}
	ch := handler.NewChaosHandler(clients, invokers, defaults, builder, recorder)

	auth := mw.NewAuth(cfg.Server.APIKeyHashes)
	if auth.Enabled() {
		slog.Info("API key authentication enabled", "keys", len(cfg.Server.APIKeyHashes))
	}

	var rl *mw.RateLimit
	if c != nil {
		rl = mw.NewRateLimit(c, cfg.Server.RateLimitPerMinute)
	}

	return api.NewRouter(api.Dependencies{
		Auth:        auth,
		RateLimit:   rl,
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler: healthHandler(st, c),

		TestOpenSearch: osh.TestConnection,
		ListIndices:    osh.ListIndices,
		FetchData:      osh.FetchData,
		TestModel:      mh.TestConnection,

		GenerateHandler:       ch.Generate,
		GenerateStreamHandler: ch.GenerateStream,
		ListRuns:              runs.List,
		GetRun:                runs.Get,
	})
}

// healthHandler checks database and cache connectivity. Services that are
// not configured report "disabled" and never degrade the result.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "disabled",
			"cache":    "disabled",
		}

		degraded := false
		if s != nil {
			checks["database"] = "ok"
			if err := s.Ping(r.Context()); err != nil {
				checks["database"] = "degraded"
				degraded = true
			}
		}
		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "healthy",
			"service":  "chaos-engineering-api",
			"services": checks,
		})
	}
}
