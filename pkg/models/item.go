package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ItemStatusPending    = "pending"
	ItemStatusProcessing = "processing"
	ItemStatusCompleted  = "completed"
	ItemStatusFailed     = "failed"
)

// Item is one inbound message awaiting or holding an analysis.
// Only the batch dispatcher moves AnalysisStatus forward; returning an item to
// pending requires an explicit requeue.
type Item struct {
	ID             uuid.UUID  `db:"id"               json:"id"`
	ExternalID     string     `db:"external_id"      json:"external_id"`
	AccountID      *uuid.UUID `db:"account_id"       json:"account_id,omitempty"`
	Tenant         string     `db:"tenant"           json:"tenant"`
	EntityID       string     `db:"entity_id"        json:"entity_id"`
	Subject        string     `db:"subject"          json:"subject"`
	Content        string     `db:"content"          json:"content"`
	ReceivedAt     time.Time  `db:"received_at"      json:"received_at"`
	AnalysisStatus string     `db:"analysis_status"  json:"analysis_status"`
	AnalysisError  *string    `db:"analysis_error"   json:"analysis_error,omitempty"`
	LastAnalyzedAt *time.Time `db:"last_analyzed_at" json:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}
