// Package batch runs analysis batches: job lifecycle tracking, chunked
// dispatch to the analyzer and automatic continuation.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// statusTTL bounds how long a mirrored job status stays in the cache.
const statusTTL = 30 * time.Minute

// ReclaimDetail is written to every running job superseded by a new run.
var ReclaimDetail = json.RawMessage(`{"reason":"timeout — superseded by new run"}`)

// JobStore is the persistence the tracker needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetLatestJob(ctx context.Context, jobType string) (*models.Job, error)
	ReclaimStaleJobs(ctx context.Context, jobType string, detail json.RawMessage) (int, error)
	FinishJob(ctx context.Context, id uuid.UUID, fin store.JobFinish) error
}

// StatusMirror receives a copy of every job status change. cache.Cache
// satisfies it.
type StatusMirror interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

// Counts are the final counters of a run.
type Counts struct {
	Processed int
	Success   int
	Errors    int
}

// Tracker owns the lifecycle of Job records.
type Tracker struct {
	store  JobStore
	mirror StatusMirror
	now    func() time.Time
}

// NewTracker creates a Tracker. mirror may be nil.
func NewTracker(st JobStore, mirror StatusMirror) *Tracker {
	return &Tracker{store: st, mirror: mirror, now: time.Now}
}

// StartOption customizes a job before it is inserted.
type StartOption func(*models.Job)

// WithParent links the new job to the run that spawned it.
func WithParent(parent *models.Job) StartOption {
	return func(j *models.Job) {
		if parent == nil {
			return
		}
		id := parent.ID
		j.ParentJobID = &id
		j.ChainDepth = parent.ChainDepth + 1
	}
}

// ReclaimStale marks every running job of jobType failed. There is no
// liveness check: a run that is genuinely still in flight is reclaimed too,
// and its own Finish later overwrites the reclaim.
func (t *Tracker) ReclaimStale(ctx context.Context, jobType string) (int, error) {
	n, err := t.store.ReclaimStaleJobs(ctx, jobType, ReclaimDetail)
	if err != nil {
		return 0, fmt.Errorf("reclaiming %s jobs: %w", jobType, err)
	}
	if n > 0 {
		slog.Warn("reclaimed stale jobs", "job_type", jobType, "count", n)
	}
	return n, nil
}

// Start inserts a running job with zero counters.
func (t *Tracker) Start(ctx context.Context, jobType string, batchSize int, opts ...StartOption) (*models.Job, error) {
	now := t.now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Type:      jobType,
		BatchSize: batchSize,
		Status:    models.JobStatusRunning,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(job)
	}

	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	t.mirrorStatus(ctx, job.ID, job.Status)
	return job, nil
}

// Begin reclaims stale running jobs of jobType and then starts a new one.
// Every run goes through Begin so no orphan survives a new start. A failed
// reclaim is logged and does not block the start.
func (t *Tracker) Begin(ctx context.Context, jobType string, batchSize int, opts ...StartOption) (*models.Job, error) {
	if _, err := t.ReclaimStale(ctx, jobType); err != nil {
		slog.Warn("stale job reclaim failed", "job_type", jobType, "error", err)
	}
	return t.Start(ctx, jobType, batchSize, opts...)
}

// Finish derives the terminal status from c and persists it with the
// counters. Repeated calls overwrite each other.
func (t *Tracker) Finish(ctx context.Context, jobID uuid.UUID, c Counts, detail json.RawMessage) (string, error) {
	status := models.DeriveJobStatus(c.Success, c.Errors)
	if err := t.finish(ctx, jobID, status, c, detail); err != nil {
		return "", err
	}
	return status, nil
}

// Fail marks the job failed regardless of counters and records cause.
func (t *Tracker) Fail(ctx context.Context, jobID uuid.UUID, c Counts, cause error) error {
	detail, _ := json.Marshal(map[string]string{"error": cause.Error()})
	return t.finish(ctx, jobID, models.JobStatusFailed, c, detail)
}

func (t *Tracker) finish(ctx context.Context, jobID uuid.UUID, status string, c Counts, detail json.RawMessage) error {
	err := t.store.FinishJob(ctx, jobID, store.JobFinish{
		Status:         status,
		ItemsProcessed: c.Processed,
		SuccessCount:   c.Success,
		ErrorCount:     c.Errors,
		ErrorDetail:    detail,
	})
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", jobID, err)
	}
	t.mirrorStatus(ctx, jobID, status)
	return nil
}

// Current returns the most recent job of jobType (any type when empty), or
// nil when none has run yet.
func (t *Tracker) Current(ctx context.Context, jobType string) (*models.Job, error) {
	job, err := t.store.GetLatestJob(ctx, jobType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading current job: %w", err)
	}
	return job, nil
}

func (t *Tracker) mirrorStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if t.mirror == nil {
		return
	}
	if err := t.mirror.SetJobStatus(ctx, jobID, status, statusTTL); err != nil {
		slog.Debug("job status mirror failed", "job_id", jobID, "error", err)
	}
}
