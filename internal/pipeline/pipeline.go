// Package pipeline runs the periodic refresh, sync, analysis and profile
// stages as one tracked unit.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/batch"
	"github.com/kiranshivaraju/inboxlens/internal/cache"
	"github.com/kiranshivaraju/inboxlens/internal/source"
	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/internal/tenant"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// ErrAlreadyRunning is returned when another run holds the pipeline lock.
var ErrAlreadyRunning = errors.New("pipeline already running")

const (
	StageStatusCompleted = "completed"
	StageStatusPartial   = "partial"
	StageStatusFailed    = "failed"
	StageStatusSkipped   = "skipped"
)

// Store is the persistence the pipeline needs.
type Store interface {
	ListSourceAccounts(ctx context.Context) ([]*models.SourceAccount, error)
	ListExpiringAccounts(ctx context.Context, before time.Time) ([]*models.SourceAccount, error)
	UpdateAccountTokens(ctx context.Context, id uuid.UUID, tokens store.AccountTokens) error
	UpdateAccountSync(ctx context.Context, id uuid.UUID, sync store.AccountSync) error
	SetAccountError(ctx context.Context, id uuid.UUID, msg string) error
	InsertItems(ctx context.Context, items []*models.Item) (int, error)
	RecordMetricEvent(ctx context.Context, event *models.MetricEvent) error
}

// BatchStarter starts an analysis batch. *batch.Engine satisfies it.
type BatchStarter interface {
	StartBatch(ctx context.Context, req batch.BatchRequest) (*batch.BatchOutcome, error)
}

// ProfileUpdater refreshes entity profiles. *profile.Updater satisfies it.
type ProfileUpdater interface {
	UpdateSince(ctx context.Context, since time.Time) (updated, failed int, err error)
}

// Locker guards against overlapping runs. cache.Cache satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Config controls stage behavior.
type Config struct {
	RefreshWindow time.Duration
	PageSize      int
	MaxPages      int
	LockTTL       time.Duration
	ProfileWindow time.Duration
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Status    string     `json:"status"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Processed int        `json:"processed"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Error     string     `json:"error,omitempty"`
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID      uuid.UUID   `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Refresh    StageResult `json:"refresh"`
	Sync       StageResult `json:"sync"`
	Analysis   StageResult `json:"analysis"`
	Profiles   StageResult `json:"profiles"`
}

// OK reports whether no stage failed outright.
func (r *RunResult) OK() bool {
	for _, s := range []StageResult{r.Refresh, r.Sync, r.Analysis, r.Profiles} {
		if s.Status == StageStatusFailed {
			return false
		}
	}
	return true
}

// Pipeline wires the stages together.
type Pipeline struct {
	store    Store
	source   source.Client
	classify tenant.Classifier
	tracker  *batch.Tracker
	batches  BatchStarter
	profiles ProfileUpdater
	locker   Locker
	cfg      Config
	now      func() time.Time
}

// New creates a Pipeline. locker may be nil to run without overlap protection.
func New(st Store, src source.Client, classify tenant.Classifier, tracker *batch.Tracker,
	batches BatchStarter, profiles ProfileUpdater, locker Locker, cfg Config) *Pipeline {
	if cfg.ProfileWindow <= 0 {
		cfg.ProfileWindow = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	return &Pipeline{
		store:    st,
		source:   src,
		classify: classify,
		tracker:  tracker,
		batches:  batches,
		profiles: profiles,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes every stage in order. Stage failures are reported in the
// result; the returned error is ErrAlreadyRunning or a context error. A stage
// that has started runs to completion; cancelling ctx only skips the stages
// after it.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	release, err := p.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &RunResult{RunID: uuid.New(), StartedAt: p.now().UTC()}
	log := slog.With("run_id", res.RunID)
	log.Info("pipeline run started")

	res.Refresh = p.runStage(ctx, res.RunID, "refresh", p.refreshStage)
	res.Sync = p.runStage(ctx, res.RunID, "sync", p.syncStage)
	res.Analysis = p.runStage(ctx, res.RunID, "analysis", p.analysisStage)
	if res.Analysis.Status == StageStatusFailed {
		res.Profiles = StageResult{Status: StageStatusSkipped, Error: "analysis stage failed"}
	} else {
		res.Profiles = p.runStage(ctx, res.RunID, "profiles", p.profileStage)
	}

	res.DurationMS = p.now().UTC().Sub(res.StartedAt).Milliseconds()
	p.recordMetric(ctx, models.MetricPipelineRun, res)
	log.Info("pipeline run finished", "ok", res.OK(), "duration_ms", res.DurationMS)

	return res, ctx.Err()
}

func (p *Pipeline) lock(ctx context.Context) (func(), error) {
	noop := func() {}
	if p.locker == nil {
		return noop, nil
	}

	key := cache.PipelineLockKey()
	token, ok, err := p.locker.AcquireLock(ctx, key, p.cfg.LockTTL)
	if err != nil {
		slog.Warn("pipeline lock unavailable, running unguarded", "error", err)
		return noop, nil
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return func() {
		if err := p.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			slog.Warn("pipeline lock release failed", "error", err)
		}
	}, nil
}

// runStage runs fn, turning a panic into a failed stage and a
// pipeline_error event.
func (p *Pipeline) runStage(ctx context.Context, runID uuid.UUID, name string, fn func(context.Context) StageResult) (res StageResult) {
	log := slog.With("run_id", runID, "stage", name)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in pipeline stage", "error", r)
			res = StageResult{Status: StageStatusFailed, Error: fmt.Sprintf("panic: %v", r)}
			p.recordMetric(ctx, models.MetricPipelineError, map[string]any{
				"run_id": runID,
				"stage":  name,
				"error":  res.Error,
			})
		}
	}()

	if err := ctx.Err(); err != nil {
		return StageResult{Status: StageStatusSkipped, Error: err.Error()}
	}

	start := time.Now()
	res = fn(context.WithoutCancel(ctx))
	log.Info("stage finished", "status", res.Status, "processed", res.Processed,
		"failed", res.Failed, "duration", time.Since(start))
	if res.Status == StageStatusFailed {
		p.recordMetric(ctx, models.MetricPipelineError, map[string]any{
			"run_id": runID,
			"stage":  name,
			"error":  res.Error,
		})
	}
	return res
}

// trackStage wraps a counted stage in a Job of jobType.
func (p *Pipeline) trackStage(ctx context.Context, jobType string, fn func(context.Context) (batch.Counts, error)) StageResult {
	job, err := p.tracker.Begin(ctx, jobType, 0)
	if err != nil {
		return StageResult{Status: StageStatusFailed, Error: err.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			_ = p.tracker.Fail(ctx, job.ID, batch.Counts{}, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	counts, runErr := fn(ctx)
	res := StageResult{
		JobID:     &job.ID,
		Processed: counts.Processed,
		Succeeded: counts.Success,
		Failed:    counts.Errors,
	}

	if runErr != nil {
		if err := p.tracker.Fail(ctx, job.ID, counts, runErr); err != nil {
			slog.Error("failed to mark stage job failed", "job_id", job.ID, "error", err)
		}
		res.Status = StageStatusFailed
		res.Error = runErr.Error()
		return res
	}

	status, err := p.tracker.Finish(ctx, job.ID, counts, nil)
	if err != nil {
		slog.Error("failed to finish stage job", "job_id", job.ID, "error", err)
		status = models.DeriveJobStatus(counts.Success, counts.Errors)
	}
	res.Status = status
	return res
}

func (p *Pipeline) recordMetric(ctx context.Context, name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode metric payload", "metric", name, "error", err)
		return
	}
	ev := &models.MetricEvent{ID: uuid.New(), Name: name, Payload: raw, CreatedAt: p.now().UTC()}
	if err := p.store.RecordMetricEvent(context.WithoutCancel(ctx), ev); err != nil {
		slog.Error("failed to record metric event", "metric", name, "error", err)
	}
}
