package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
	"golang.org/x/sync/errgroup"
)

// MaxReportedErrors caps the per-item errors returned with a batch.
const MaxReportedErrors = 10

// ItemStore is the item persistence the dispatcher needs.
type ItemStore interface {
	SelectItems(ctx context.Context, filter store.ItemFilter) ([]*models.Item, error)
	MarkItemsProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) error
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
	MarkItemFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Analyzer classifies one message. *ai.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, subject, content string) (models.Classification, error)
}

// Selection describes which items one run picks up.
type Selection struct {
	BatchSize int
	// Force ignores analysis status and re-analyzes completed items too.
	Force bool
	// ChainStart excludes items already attempted by the current
	// continuation chain.
	ChainStart time.Time
	Tenant     string
	JobID      *uuid.UUID
}

// Filter returns the store filter for sel. The continuation probe uses the
// same filter so it never reports items the next run would skip.
func (sel Selection) Filter() store.ItemFilter {
	f := store.ItemFilter{
		AttemptedBefore: sel.ChainStart,
		Tenant:          sel.Tenant,
		Limit:           sel.BatchSize,
	}
	if !sel.Force {
		f.Statuses = []string{models.ItemStatusPending, models.ItemStatusFailed}
	}
	return f
}

// ItemError is one per-item failure reported with a batch.
type ItemError struct {
	ItemID uuid.UUID `json:"item_id"`
	Error  string    `json:"error"`
}

// BatchResult summarizes one dispatcher run.
type BatchResult struct {
	BatchID      uuid.UUID   `json:"batch_id"`
	Selected     int         `json:"selected"`
	Processed    int         `json:"processed"`
	SuccessCount int         `json:"success_count"`
	ErrorCount   int         `json:"error_count"`
	Errors       []ItemError `json:"errors"`
}

// Counts converts r to tracker counters.
func (r *BatchResult) Counts() Counts {
	return Counts{Processed: r.Processed, Success: r.SuccessCount, Errors: r.ErrorCount}
}

// DispatcherConfig controls chunking.
type DispatcherConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

// Dispatcher selects items and analyzes them in concurrent chunks.
type Dispatcher struct {
	items      ItemStore
	analyzer   Analyzer
	provider   string
	model      string
	chunkSize  int
	chunkDelay time.Duration
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher. provider and model are recorded on
// results when the analyzer does not fill them in.
func NewDispatcher(items ItemStore, analyzer Analyzer, provider, model string, cfg DispatcherConfig) *Dispatcher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	return &Dispatcher{
		items:      items,
		analyzer:   analyzer,
		provider:   provider,
		model:      model,
		chunkSize:  cfg.ChunkSize,
		chunkDelay: cfg.ChunkDelay,
		now:        time.Now,
	}
}

type itemOutcome struct {
	itemID uuid.UUID
	err    error
}

// RunBatch runs one batch. Errors returned are batch-fatal: nothing was
// dispatched, or items could not be claimed. Per-item failures are reported
// in the result and recorded on the item.
func (d *Dispatcher) RunBatch(ctx context.Context, sel Selection) (*BatchResult, error) {
	res := &BatchResult{BatchID: uuid.New(), Errors: []ItemError{}}

	items, err := d.items.SelectItems(ctx, sel.Filter())
	if err != nil {
		return nil, fmt.Errorf("selecting items: %w", err)
	}
	res.Selected = len(items)
	if len(items) == 0 {
		return res, nil
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := d.items.MarkItemsProcessing(ctx, ids, d.now().UTC()); err != nil {
		return nil, fmt.Errorf("marking items processing: %w", err)
	}

	slog.Info("dispatching batch", "batch_id", res.BatchID, "items", len(items), "chunk_size", d.chunkSize)

	// Items are claimed now; their final status is written even if the
	// caller goes away.
	persistCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(items); start += d.chunkSize {
		if start > 0 && d.chunkDelay > 0 {
			wait(ctx, d.chunkDelay)
		}

		end := min(start+d.chunkSize, len(items))
		chunk := items[start:end]
		outcomes := make([]itemOutcome, len(chunk))

		var g errgroup.Group
		for i, it := range chunk {
			g.Go(func() error {
				outcomes[i] = itemOutcome{itemID: it.ID, err: d.processItem(ctx, persistCtx, it, res.BatchID, sel.JobID)}
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range outcomes {
			res.Processed++
			if o.err == nil {
				res.SuccessCount++
				continue
			}
			res.ErrorCount++
			if len(res.Errors) < MaxReportedErrors {
				res.Errors = append(res.Errors, ItemError{ItemID: o.itemID, Error: o.err.Error()})
			}
		}
	}

	slog.Info("batch finished", "batch_id", res.BatchID, "processed", res.Processed,
		"success_count", res.SuccessCount, "error_count", res.ErrorCount)
	return res, nil
}

// processItem analyzes one item and records the outcome on it.
func (d *Dispatcher) processItem(ctx, persistCtx context.Context, it *models.Item, batchID uuid.UUID, jobID *uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic analyzing item", "error", r, "item_id", it.ID)
			err = fmt.Errorf("panic: %v", r)
			d.markFailed(persistCtx, it.ID, err)
		}
	}()

	c, err := d.analyzer.Analyze(ctx, it.Subject, it.Content)
	if err != nil {
		d.markFailed(persistCtx, it.ID, err)
		return err
	}

	now := d.now().UTC()
	result := &models.AnalysisResult{
		ID:             uuid.New(),
		ItemID:         it.ID,
		BatchID:        batchID,
		JobID:          jobID,
		Provider:       orDefault(c.Provider, d.provider),
		Model:          orDefault(c.Model, d.model),
		Category:       c.Category,
		Sentiment:      c.Sentiment,
		SentimentScore: c.SentimentScore,
		Confidence:     c.Confidence,
		Severity:       c.Severity,
		Entities:       c.Entities,
		KeyPhrases:     c.KeyPhrases,
		Summary:        c.Summary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.items.SaveAnalysis(persistCtx, result); err != nil {
		d.markFailed(persistCtx, it.ID, err)
		return err
	}
	return nil
}

func (d *Dispatcher) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	if err := d.items.MarkItemFailed(ctx, id, cause.Error()); err != nil {
		slog.Error("failed to record item failure", "item_id", id, "error", err)
	}
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
