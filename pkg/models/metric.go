package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	MetricPipelineRun   = "pipeline_run"
	MetricPipelineError = "pipeline_error"
)

// MetricEvent is an append-only record emitted once per pipeline run or failure.
type MetricEvent struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	Name      string          `db:"name"       json:"name"`
	Payload   json.RawMessage `db:"payload"    json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
