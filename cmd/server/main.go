// Package main is the entrypoint for the InboxLens API server.
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

	"github.com/kiranshivaraju/inboxlens/internal/api"
	"github.com/kiranshivaraju/inboxlens/internal/api/handler"
	mw "github.com/kiranshivaraju/inboxlens/internal/api/middleware"
	"github.com/kiranshivaraju/inboxlens/internal/app"
	"github.com/kiranshivaraju/inboxlens/internal/config"
	"github.com/kiranshivaraju/inboxlens/internal/pipeline"
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
	// 1. Load config, failing fast when it is invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect, migrate and wire components
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 3. Build router with dependencies
	router := api.NewRouter(newDependencies(a))

	// 4. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
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

	scheduleDone := make(chan struct{})
	if cfg.Pipeline.Interval > 0 {
		go func() {
			defer close(scheduleDone)
			schedule(ctx, a.Pipeline, cfg.Pipeline.Interval)
		}()
	} else {
		close(scheduleDone)
	}

	// Wait for shutdown signal or server error
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

	// A scheduled run in flight finishes its current stage before Close.
	<-scheduleDone

	slog.Info("server stopped gracefully")
	return nil
}

func newDependencies(a *app.App) api.Dependencies {
	return api.Dependencies{
		RateLimit: mw.NewRateLimit(a.Cache, a.Config.Server.RateLimitPerMin),

		HealthHandler:      handler.NewHealthHandler(a.Store, a.Cache),
		StartBatchHandler:  handler.NewStartBatchHandler(a.Engine),
		CurrentJobHandler:  handler.NewCurrentJobHandler(a.Engine.Tracker()),
		RunPipelineHandler: handler.NewRunPipelineHandler(a.Pipeline),
		RequeueHandler:     handler.NewRequeueHandler(a.Store),
	}
}

// runner is the part of the pipeline the scheduler drives.
type runner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// schedule runs the pipeline every interval until ctx is done. Overlap with
// a manually triggered run is resolved by the pipeline lock. A run in flight
// when ctx is cancelled completes its current stage and skips the rest.
func schedule(ctx context.Context, p runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("pipeline schedule started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := p.Run(ctx)
			switch {
			case errors.Is(err, pipeline.ErrAlreadyRunning):
				slog.Info("scheduled pipeline run skipped, another run is in progress")
			case err != nil:
				slog.Error("scheduled pipeline run failed", "error", err)
			default:
				slog.Info("scheduled pipeline run finished", "run_id", res.RunID, "ok", res.OK(), "duration_ms", res.DurationMS)
			}
		}
	}
}
