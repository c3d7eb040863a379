package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// EligibilityProbe answers whether any item still matches a filter.
type EligibilityProbe interface {
	HasEligibleItems(ctx context.Context, filter store.ItemFilter) (bool, error)
}

// EngineConfig holds engine defaults.
type EngineConfig struct {
	DefaultBatchSize int
	// MaxChainDepth caps how many continuation runs follow one request.
	MaxChainDepth int
}

// BatchRequest is the input to StartBatch.
type BatchRequest struct {
	BatchSize int
	Force     bool
	Tenant    string
	// NoContinuation disables follow-up runs.
	NoContinuation bool
}

// BatchOutcome is the result of the first run of a request.
type BatchOutcome struct {
	Job                   *models.Job
	Result                *BatchResult
	ContinuationScheduled bool
}

// Engine runs analysis batches end to end and chains follow-up runs while
// eligible items remain.
type Engine struct {
	tracker    *Tracker
	dispatcher *Dispatcher
	probe      EligibilityProbe
	cfg        EngineConfig
	now        func() time.Time

	wg sync.WaitGroup
}

// NewEngine creates an Engine.
func NewEngine(tracker *Tracker, dispatcher *Dispatcher, probe EligibilityProbe, cfg EngineConfig) *Engine {
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 10
	}
	return &Engine{tracker: tracker, dispatcher: dispatcher, probe: probe, cfg: cfg, now: time.Now}
}

// Tracker exposes the engine's job tracker.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// StartBatch reclaims stale jobs, runs one batch under a new job and, when the
// batch was full, made progress and eligible items remain, schedules
// continuation runs in the background. Once started, a batch runs to
// completion even if ctx is cancelled. A returned error is batch-fatal; the
// outcome still carries the failed job when one was created.
func (e *Engine) StartBatch(ctx context.Context, req BatchRequest) (*BatchOutcome, error) {
	e.wg.Add(1)
	defer e.wg.Done()
	ctx = context.WithoutCancel(ctx)

	if req.BatchSize <= 0 {
		req.BatchSize = e.cfg.DefaultBatchSize
	}
	// Postgres stores microseconds; truncating keeps the chain filter exact.
	chainStart := e.now().UTC().Truncate(time.Microsecond)

	job, result, err := e.runOnce(ctx, req, chainStart, nil)
	out := &BatchOutcome{Job: job, Result: result}
	if err != nil {
		return out, err
	}

	if e.shouldContinue(req, job, result) && e.hasMore(ctx, req, chainStart, job) {
		out.ContinuationScheduled = true
		e.wg.Add(1)
		go e.continueChain(ctx, req, chainStart, job)
	}
	return out, nil
}

// Wait blocks until every running batch and continuation chain has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// runOnce runs a single job: reclaim, start, dispatch, finish.
func (e *Engine) runOnce(ctx context.Context, req BatchRequest, chainStart time.Time, parent *models.Job) (job *models.Job, result *BatchResult, err error) {
	job, err = e.tracker.Begin(ctx, models.JobTypeAnalysis, req.BatchSize, WithParent(parent))
	if err != nil {
		return nil, nil, err
	}
	log := slog.With("job_id", job.ID, "job_type", job.Type, "chain_depth", job.ChainDepth)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in batch run", "error", r)
			err = fmt.Errorf("panic: %v", r)
			if ferr := e.tracker.Fail(ctx, job.ID, Counts{}, err); ferr != nil {
				log.Error("failed to mark job failed", "error", ferr)
			}
			job.Status = models.JobStatusFailed
		}
	}()

	result, err = e.dispatcher.RunBatch(ctx, Selection{
		BatchSize:  req.BatchSize,
		Force:      req.Force,
		ChainStart: chainStart,
		Tenant:     req.Tenant,
		JobID:      &job.ID,
	})
	if err != nil {
		log.Error("batch failed", "error", err)
		if ferr := e.tracker.Fail(ctx, job.ID, Counts{}, err); ferr != nil {
			log.Error("failed to mark job failed", "error", ferr)
		}
		job.Status = models.JobStatusFailed
		return job, nil, err
	}

	status, err := e.tracker.Finish(ctx, job.ID, result.Counts(), errorDetail(result.Errors))
	if err != nil {
		return job, result, err
	}
	job.Status = status
	job.ItemsProcessed = result.Processed
	job.SuccessCount = result.SuccessCount
	job.ErrorCount = result.ErrorCount
	log.Info("job finished", "status", status, "batch_id", result.BatchID)
	return job, result, nil
}

// continueChain keeps running follow-up jobs until a run is short, makes no
// progress, nothing eligible is left or the depth cap is reached. The caller
// has already probed for the first follow-up.
func (e *Engine) continueChain(ctx context.Context, req BatchRequest, chainStart time.Time, parent *models.Job) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in continuation chain", "error", r, "parent_job_id", parent.ID)
		}
	}()

	for {
		slog.Info("continuing batch", "parent_job_id", parent.ID, "chain_depth", parent.ChainDepth+1)
		job, result, err := e.runOnce(ctx, req, chainStart, parent)
		if err != nil {
			slog.Error("continuation run failed", "parent_job_id", parent.ID, "error", err)
			return
		}
		if !e.shouldContinue(req, job, result) || !e.hasMore(ctx, req, chainStart, job) {
			return
		}
		parent = job
	}
}

// hasMore reports whether an item the chain has not attempted is still
// eligible. Probe errors end the chain.
func (e *Engine) hasMore(ctx context.Context, req BatchRequest, chainStart time.Time, job *models.Job) bool {
	sel := Selection{BatchSize: req.BatchSize, Force: req.Force, ChainStart: chainStart, Tenant: req.Tenant}
	more, err := e.probe.HasEligibleItems(ctx, sel.Filter())
	if err != nil {
		slog.Error("continuation probe failed", "job_id", job.ID, "error", err)
		return false
	}
	return more
}

func (e *Engine) shouldContinue(req BatchRequest, job *models.Job, result *BatchResult) bool {
	if req.NoContinuation || result == nil {
		return false
	}
	if result.SuccessCount == 0 || result.Selected < req.BatchSize {
		return false
	}
	if job.ChainDepth >= e.cfg.MaxChainDepth {
		slog.Warn("continuation depth cap reached", "job_id", job.ID, "chain_depth", job.ChainDepth)
		return false
	}
	return true
}

func errorDetail(errs []ItemError) json.RawMessage {
	if len(errs) == 0 {
		return nil
	}
	b, err := json.Marshal(map[string]any{"errors": errs})
	if err != nil {
		return nil
	}
	return b
}
