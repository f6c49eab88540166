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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PratikDhanave/geofence-engine/internal/config"
	"github.com/PratikDhanave/geofence-engine/internal/dispatch"
	"github.com/PratikDhanave/geofence-engine/internal/engine"
	"github.com/PratikDhanave/geofence-engine/internal/httpserver"
	"github.com/PratikDhanave/geofence-engine/internal/logging"
	"github.com/PratikDhanave/geofence-engine/internal/metrics"
	"github.com/PratikDhanave/geofence-engine/internal/store"
)

// main boots the service: config → DB → schema → engine → HTTP server.
func main() {
	// Load runtime config from environment (DB_URL, BROADCAST_URL, SERVICE_ROLE_KEY).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Ensure views and RPC functions exist so `docker compose up --build` is enough.
	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	broadcaster, err := dispatch.NewBroadcastClient(cfg.BroadcastURL, cfg.ServiceRoleKey, dispatch.Options{
		Timeout: cfg.BroadcastTimeout,
		RPS:     cfg.BroadcastRPS,
	})
	if err != nil {
		logger.Error("failed to build broadcast client", "error", err)
		os.Exit(1)
	}

	opts := engine.Options{
		JobName:        cfg.JobName,
		PositionWindow: cfg.PositionWindow,
		Logger:         logger,
	}
	if cfg.CountDailySends {
		opts.Counter = db
	}
	if cfg.RunLock {
		opts.Locker = db
	}
	eng := engine.New(db, broadcaster, opts)

	metrics.Register(prometheus.DefaultRegisterer)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpserver.NewRouter(cfg, db, eng, prometheus.DefaultGatherer, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", server.Addr, "job", cfg.JobName, "run_lock", cfg.RunLock)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}
