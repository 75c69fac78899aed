package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MOSSV2/morphic/internal/auth"
	"github.com/MOSSV2/morphic/internal/config"
	"github.com/MOSSV2/morphic/internal/handlers"
	"github.com/MOSSV2/morphic/internal/kv"
	"github.com/MOSSV2/morphic/internal/metrics"
	"github.com/MOSSV2/morphic/internal/middleware"
	"github.com/MOSSV2/morphic/internal/models"
	"github.com/MOSSV2/morphic/internal/modelusage"
	"github.com/MOSSV2/morphic/internal/ratelimit"
	"github.com/MOSSV2/morphic/internal/stats"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting morphic usage service",
		"port", cfg.Port,
		"redis_addr", cfg.RedisAddr,
		"anonymous_limit", cfg.AnonymousLimit,
		"authenticated_limit", cfg.AuthenticatedLimit,
		"window_minutes", cfg.WindowMinutes,
		"total_quota", cfg.TotalQuota,
		"admin_enabled", cfg.AdminToken != "",
	)

	// Initialize the store. An unreachable store is a warning, not a fatal
	// error: admission fails open by design.
	store := kv.NewRedisStore(kv.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer store.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		slog.Warn("store unreachable at startup, admission will fail open", "error", err)
	} else {
		slog.Info("store connected", "addr", cfg.RedisAddr)
	}
	cancelPing()

	// Wire components
	authSvc := auth.NewService(cfg.SessionSecret)
	limiter := ratelimit.New(store, ratelimit.Limits{
		Anonymous:     ratelimit.Limit{MaxRequests: cfg.AnonymousLimit, Window: cfg.Window()},
		Authenticated: ratelimit.Limit{MaxRequests: cfg.AuthenticatedLimit, Window: cfg.Window()},
		Quota:         ratelimit.Limit{MaxRequests: cfg.TotalQuota, Window: cfg.QuotaWindow()},
	})
	tracker := modelusage.New(store, cfg.ModelRetention())
	aggregator := stats.New(store, tracker)

	startTime := time.Now()

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", handlers.ChatHandler(authSvc, limiter, tracker, cfg, ackChatService{}))
	mux.HandleFunc("/api/usage", handlers.UsageHandler(authSvc, limiter, cfg))
	mux.HandleFunc("/api/stats", handlers.StatsHandler(aggregator))
	mux.HandleFunc("/api/debug/user-calls", handlers.DebugUserCallsHandler(authSvc, limiter))
	mux.HandleFunc("/api/admin/reset", handlers.AdminResetHandler(cfg, limiter))
	mux.HandleFunc("/health", handlers.HealthHandler(store, startTime))
	mux.Handle("/metrics", promhttp.Handler())

	// Wrap with middleware (order: Recovery -> Logging -> Metrics -> handlers)
	handler := middleware.RecoveryMiddleware(
		middleware.LoggingMiddleware(
			metrics.Middleware(mux),
		),
	)

	// Setup HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				slog.Error("server close failed", "error", err)
			}
			os.Exit(1)
		}

		slog.Info("server shutdown complete")
	}
}

// ackChatService is a placeholder chat backend: it acknowledges the admitted
// request instead of streaming a model response. Deployments plug a real
// provider proxy in behind the handlers.ChatService interface.
type ackChatService struct{}

func (ackChatService) Respond(w http.ResponseWriter, r *http.Request, req *models.ChatRequest, modelID string) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]string{
		"status": "accepted",
		"chatId": req.ID,
		"model":  modelID,
	})
}
