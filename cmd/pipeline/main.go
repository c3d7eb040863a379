// Package main runs the InboxLens pipeline once and exits. The exit code is
// non-zero when any stage failed, so it can be driven by cron.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/inboxlens/internal/app"
	"github.com/kiranshivaraju/inboxlens/internal/config"
	"github.com/kiranshivaraju/inboxlens/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	res, err := run()
	if res != nil {
		_ = json.NewEncoder(os.Stdout).Encode(res)
	}
	os.Exit(exitCode(res, err))
}

func run() (*pipeline.RunResult, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Close waits for continuation runs the analysis stage scheduled.
	defer a.Close()

	res, err := a.Pipeline.Run(ctx)
	if err != nil {
		slog.Error("pipeline run failed", "error", err)
		return res, err
	}
	slog.Info("pipeline run finished", "run_id", res.RunID, "ok", res.OK(), "duration_ms", res.DurationMS)
	return res, nil
}

func exitCode(res *pipeline.RunResult, err error) int {
	switch {
	case err != nil && res == nil:
		slog.Error("pipeline failed", "error", err)
		return 1
	case err != nil || !res.OK():
		return 2
	default:
		return 0
	}
}
