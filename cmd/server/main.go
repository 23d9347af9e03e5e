// Popup Store Agent Gateway - streams inventory workflow runs over WebSocket.
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

	"github.com/gloveboxes/popupstore-agent-gateway/internal/api"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/config"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/gateway"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/middleware"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/store"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/workflow"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting gateway", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	metrics := gateway.DefaultMetrics()

	var eventLog *gateway.EventLogger
	if cfg.EventLog.Enabled {
		eventLog, err = gateway.NewEventLogger(gateway.EventLogConfig{
			Enabled:   true,
			Dir:       cfg.EventLog.Dir,
			QueueSize: cfg.EventLog.QueueSize,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize event logger", "error", err)
			os.Exit(1)
		}
		defer eventLog.Close()
		slog.Info("Event logging enabled", "dir", cfg.EventLog.Dir)
	}

	// Each session gets a fresh pipeline wired to the shared collaborators.
	extractor := workflow.RuleBasedExtractor{}
	policies := store.NewPolicyLookup(repo)
	summarizer := workflow.MarkdownSummarizer{}
	factory := workflow.Factory(func() workflow.Runner {
		p, err := workflow.NewInventoryPipeline(logger, extractor, policies, summarizer)
		if err != nil {
			// InventoryStages is never empty, so this is unreachable in
			// practice; fail loudly rather than serve a broken session.
			slog.Error("Failed to build pipeline", "error", err)
			os.Exit(1)
		}
		return p
	})

	sessionCfg := gateway.SessionConfig{
		RequestIdleTimeout: cfg.Session.RequestIdleTimeout,
		RunnerTimeout:      cfg.Session.RunnerTimeout,
		SendQueueSize:      cfg.Session.SendQueueSize,
	}
	wsHandler := gateway.NewHandler(factory, repo, metrics, eventLog, logger, sessionCfg, cfg.FrontendURL, cfg.IsDevelopment())

	healthHandler := api.NewHealthHandler(repo)
	sessionHandler := api.NewSessionHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	// Create server.
	// Note: streaming sessions require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartRetentionWorker(ctx, repo, cfg.History.SweepInterval, cfg.History.Retention)
	slog.Info("History retention worker started", "retention", cfg.History.Retention)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
