package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Consumers should depend on the narrower interfaces they declare themselves.
type Store interface {
	Ping(ctx context.Context) error

	InsertItems(ctx context.Context, items []*models.Item) (int, error)
	SelectItems(ctx context.Context, filter ItemFilter) ([]*models.Item, error)
	HasEligibleItems(ctx context.Context, filter ItemFilter) (bool, error)
	MarkItemsProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) error
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
	MarkItemFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	RequeueItems(ctx context.Context, ids []uuid.UUID) (int, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	GetAnalysisResultByItemID(ctx context.Context, itemID uuid.UUID) (*models.AnalysisResult, error)

	ListEntitiesAnalyzedSince(ctx context.Context, since time.Time) ([]models.EntityKey, error)
	ListEntityResults(ctx context.Context, key models.EntityKey) ([]models.EntityResult, error)
	UpsertEntityProfile(ctx context.Context, profile *models.EntityProfile) error
	GetEntityProfile(ctx context.Context, key models.EntityKey) (*models.EntityProfile, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetLatestJob(ctx context.Context, jobType string) (*models.Job, error)
	ReclaimStaleJobs(ctx context.Context, jobType string, detail json.RawMessage) (int, error)
	FinishJob(ctx context.Context, id uuid.UUID, fin JobFinish) error

	RecordMetricEvent(ctx context.Context, event *models.MetricEvent) error

	CreateSourceAccount(ctx context.Context, account *models.SourceAccount) error
	ListSourceAccounts(ctx context.Context) ([]*models.SourceAccount, error)
	ListExpiringAccounts(ctx context.Context, before time.Time) ([]*models.SourceAccount, error)
	UpdateAccountTokens(ctx context.Context, id uuid.UUID, tokens AccountTokens) error
	UpdateAccountSync(ctx context.Context, id uuid.UUID, sync AccountSync) error
	SetAccountError(ctx context.Context, id uuid.UUID, msg string) error
}

// ItemFilter selects items for a dispatcher run.
// An empty Statuses slice matches every status (force re-analysis).
type ItemFilter struct {
	Statuses []string
	// AttemptedBefore, when set, excludes items stamped at or after this instant.
	AttemptedBefore time.Time
	Tenant          string
	AccountID       *uuid.UUID
	Limit           int
}

// JobFinish carries the final counters for a job.
type JobFinish struct {
	Status         string
	ItemsProcessed int
	SuccessCount   int
	ErrorCount     int
	ErrorDetail    json.RawMessage
}

type AccountTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AccountSync records the outcome of one sync pass. A nil Cursor keeps the
// stored cursor; a nil Error clears the last error.
type AccountSync struct {
	Cursor   *time.Time
	SyncedAt time.Time
	Error    *string
}

// TokenSealer encrypts source credentials before they are written.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}
