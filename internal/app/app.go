// Package app assembles the InboxLens components from configuration. Both the
// API server and the one-shot pipeline command build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/inboxlens/internal/ai"
	"github.com/kiranshivaraju/inboxlens/internal/batch"
	"github.com/kiranshivaraju/inboxlens/internal/cache"
	"github.com/kiranshivaraju/inboxlens/internal/config"
	"github.com/kiranshivaraju/inboxlens/internal/pipeline"
	"github.com/kiranshivaraju/inboxlens/internal/profile"
	"github.com/kiranshivaraju/inboxlens/internal/secrets"
	"github.com/kiranshivaraju/inboxlens/internal/source"
	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/internal/tenant"
)

// App holds the wired components and the connections they share.
type App struct {
	Config   *config.Config
	Store    *store.PostgresStore
	Cache    *cache.RedisCache
	Engine   *batch.Engine
	Pipeline *pipeline.Pipeline

	pool *pgxpool.Pool
}

// Build connects to Postgres and Redis, applies migrations and wires every
// component. Inputs that need no network are checked first.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("create secrets box: %w", err)
	}

	classify, err := NewClassifier(cfg.Tenant)
	if err != nil {
		return nil, fmt.Errorf("create tenant classifier: %w", err)
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name(), "model", provider.Model())

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		pool.Close()
		redisCache.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pgStore := store.NewPostgresStore(pool, box)
	analyzer := ai.NewAnalyzer(provider, cfg.AI.InferenceTimeout)

	tracker := batch.NewTracker(pgStore, redisCache)
	dispatcher := batch.NewDispatcher(pgStore, analyzer, analyzer.Provider(), analyzer.Model(), batch.DispatcherConfig{
		ChunkSize:  cfg.Batch.ChunkSize,
		ChunkDelay: cfg.Batch.ChunkDelay,
	})
	engine := batch.NewEngine(tracker, dispatcher, pgStore, batch.EngineConfig{
		DefaultBatchSize: cfg.Batch.Size,
		MaxChainDepth:    cfg.Batch.MaxChainDepth,
	})

	src := source.NewHTTPClient(cfg.Source.BaseURL, cfg.Source.ClientID, cfg.Source.ClientSecret, cfg.Source.Timeout)
	pl := pipeline.New(pgStore, src, classify, tracker, engine, profile.NewUpdater(pgStore), redisCache, pipeline.Config{
		RefreshWindow: cfg.Source.RefreshWindow,
		PageSize:      cfg.Source.PageSize,
		MaxPages:      cfg.Source.MaxPages,
		LockTTL:       cfg.Pipeline.LockTTL,
		ProfileWindow: cfg.Pipeline.ProfileWindow,
	})

	return &App{
		Config:   cfg,
		Store:    pgStore,
		Cache:    redisCache,
		Engine:   engine,
		Pipeline: pl,
		pool:     pool,
	}, nil
}

// Close waits for background continuation runs, then releases connections.
func (a *App) Close() {
	a.Engine.Wait()
	if err := a.Cache.Close(); err != nil {
		slog.Warn("close redis", "error", err)
	}
	a.pool.Close()
}

// NewClassifier returns the rule classifier for cfg, or a static one when no
// rules are configured.
func NewClassifier(cfg config.TenantConfig) (tenant.Classifier, error) {
	if cfg.Rules == "" {
		return tenant.Static(cfg.Default), nil
	}
	return tenant.NewRuleClassifier(cfg.Rules, cfg.Default)
}
