package batch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// fakeStore is an in-memory JobStore, ItemStore and EligibilityProbe.
type fakeStore struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*models.Item
	results map[uuid.UUID]*models.AnalysisResult
	jobs    []*models.Job

	selectErr error
	markErr   error
	createErr error
	markCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:   make(map[uuid.UUID]*models.Item),
		results: make(map[uuid.UUID]*models.AnalysisResult),
	}
}

// seed adds n pending items, newest first, and returns them in that order.
func (f *fakeStore) seed(n int, subjectPrefix string) []*models.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := time.Now().UTC().Add(-time.Hour)
	out := make([]*models.Item, n)
	for i := range n {
		it := &models.Item{
			ID:             uuid.New(),
			ExternalID:     fmt.Sprintf("%s-%d", subjectPrefix, i),
			Subject:        fmt.Sprintf("%s %d", subjectPrefix, i),
			Content:        "hello",
			ReceivedAt:     base.Add(-time.Duration(i) * time.Minute),
			AnalysisStatus: models.ItemStatusPending,
		}
		f.items[it.ID] = it
		out[i] = it
	}
	return out
}

func (f *fakeStore) item(id uuid.UUID) models.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

func (f *fakeStore) countStatus(status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if it.AnalysisStatus == status {
			n++
		}
	}
	return n
}

func (f *fakeStore) allJobs() []models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Job, len(f.jobs))
	for i, j := range f.jobs {
		out[i] = *j
	}
	return out
}

func matches(it *models.Item, filter store.ItemFilter) bool {
	if len(filter.Statuses) > 0 {
		ok := false
		for _, s := range filter.Statuses {
			if it.AnalysisStatus == s {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if !filter.AttemptedBefore.IsZero() && it.LastAnalyzedAt != nil && !it.LastAnalyzedAt.Before(filter.AttemptedBefore) {
		return false
	}
	if filter.Tenant != "" && it.Tenant != filter.Tenant {
		return false
	}
	return true
}

func (f *fakeStore) SelectItems(_ context.Context, filter store.ItemFilter) ([]*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}

	var out []*models.Item
	for _, it := range f.items {
		if matches(it, filter) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) HasEligibleItems(_ context.Context, filter store.ItemFilter) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if matches(it, filter) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkItemsProcessing(_ context.Context, ids []uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markErr != nil {
		return f.markErr
	}
	for _, id := range ids {
		it := f.items[id]
		it.AnalysisStatus = models.ItemStatusProcessing
		ts := at
		it.LastAnalyzedAt = &ts
	}
	return nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, r *models.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[r.ItemID]
	if !ok {
		return store.ErrNotFound
	}
	cp := *r
	f.results[r.ItemID] = &cp
	it.AnalysisStatus = models.ItemStatusCompleted
	it.AnalysisError = nil
	return nil
}

func (f *fakeStore) MarkItemFailed(_ context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	it.AnalysisStatus = models.ItemStatusFailed
	it.AnalysisError = &msg
	return nil
}

func (f *fakeStore) CreateJob(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *job
	f.jobs = append(f.jobs, &cp)
	return nil
}

func (f *fakeStore) GetLatestJob(_ context.Context, jobType string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.jobs) - 1; i >= 0; i-- {
		if jobType == "" || f.jobs[i].Type == jobType {
			cp := *f.jobs[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ReclaimStaleJobs(_ context.Context, jobType string, detail json.RawMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Type == jobType && j.Status == models.JobStatusRunning {
			j.Status = models.JobStatusFailed
			j.ErrorDetail = detail
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FinishJob(_ context.Context, id uuid.UUID, fin store.JobFinish) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			now := time.Now().UTC()
			j.Status = fin.Status
			j.ItemsProcessed = fin.ItemsProcessed
			j.SuccessCount = fin.SuccessCount
			j.ErrorCount = fin.ErrorCount
			j.ErrorDetail = fin.ErrorDetail
			j.CompletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

// fakeAnalyzer classifies with fn, or succeeds when fn is nil.
type fakeAnalyzer struct {
	mu    sync.Mutex
	fn    func(subject string) (models.Classification, error)
	calls int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, subject, _ string) (models.Classification, error) {
	a.mu.Lock()
	a.calls++
	fn := a.fn
	a.mu.Unlock()
	if fn != nil {
		return fn(subject)
	}
	return okClassification(), nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func okClassification() models.Classification {
	return models.Classification{
		Category:       "billing",
		Sentiment:      "negative",
		SentimentScore: 0.2,
		Confidence:     0.9,
		Severity:       "high",
		Entities:       []string{},
		KeyPhrases:     []string{},
	}
}

// failSubject returns an analyzer fn that fails exactly the given subjects.
func failSubject(subjects ...string) func(string) (models.Classification, error) {
	bad := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		bad[s] = true
	}
	return func(subject string) (models.Classification, error) {
		if bad[subject] {
			return models.Classification{}, fmt.Errorf("external service error: status 500")
		}
		return okClassification(), nil
	}
}

type fakeMirror struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
	err      error
}

func (m *fakeMirror) SetJobStatus(_ context.Context, id uuid.UUID, status string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[uuid.UUID]string)
	}
	m.statuses[id] = status
	return m.err
}
