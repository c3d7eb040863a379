package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusPartial   = "partial"
)

const (
	JobTypeAnalysis      = "message_analysis"
	JobTypeTokenRefresh  = "token_refresh"
	JobTypeSourceSync    = "source_sync"
	JobTypeProfileUpdate = "profile_update"
)

// Job is one tracked batch run. A continuation run links back to the run that
// spawned it through ParentJobID.
type Job struct {
	ID             uuid.UUID       `db:"id"              json:"id"`
	Type           string          `db:"type"            json:"type"`
	BatchSize      int             `db:"batch_size"      json:"batch_size"`
	Status         string          `db:"status"          json:"status"`
	ItemsProcessed int             `db:"items_processed" json:"items_processed"`
	SuccessCount   int             `db:"success_count"   json:"success_count"`
	ErrorCount     int             `db:"error_count"     json:"error_count"`
	ErrorDetail    json.RawMessage `db:"error_detail"    json:"error_detail,omitempty"`
	ParentJobID    *uuid.UUID      `db:"parent_job_id"   json:"parent_job_id,omitempty"`
	ChainDepth     int             `db:"chain_depth"     json:"chain_depth"`
	StartedAt      time.Time       `db:"started_at"      json:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at"    json:"completed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}

// DeriveJobStatus maps final counters to a terminal job status.
// A run with no errors is completed, even when nothing was processed.
func DeriveJobStatus(successCount, errorCount int) string {
	switch {
	case errorCount == 0:
		return JobStatusCompleted
	case successCount == 0:
		return JobStatusFailed
	default:
		return JobStatusPartial
	}
}
