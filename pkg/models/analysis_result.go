package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisResult holds the structured classification of a single item.
// There is at most one row per item; re-analysis replaces it.
type AnalysisResult struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	ItemID         uuid.UUID  `db:"item_id"         json:"item_id"`
	BatchID        uuid.UUID  `db:"batch_id"        json:"batch_id"`
	JobID          *uuid.UUID `db:"job_id"          json:"job_id,omitempty"`
	Provider       string     `db:"provider"        json:"provider"`
	Model          string     `db:"model"           json:"model"`
	Category       string     `db:"category"        json:"category"`
	Sentiment      string     `db:"sentiment"       json:"sentiment"`
	SentimentScore float64    `db:"sentiment_score" json:"sentiment_score"`
	Confidence     float64    `db:"confidence"      json:"confidence"`
	Severity       string     `db:"severity"        json:"severity"`
	Entities       []string   `db:"entities"        json:"entities"`
	KeyPhrases     []string   `db:"key_phrases"     json:"key_phrases"`
	Summary        string     `db:"summary"         json:"summary"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// EntityResult is an analysis result joined with the owning item's entity fields,
// used for profile aggregation.
type EntityResult struct {
	Tenant     string
	EntityID   string
	ReceivedAt time.Time
	Result     AnalysisResult
}
