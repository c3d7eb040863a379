package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/api/response"
	"github.com/kiranshivaraju/inboxlens/internal/pipeline"
)

// PipelineRunner runs the pipeline once. *pipeline.Pipeline satisfies it.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

type pipelineStages struct {
	Refresh  pipeline.StageResult `json:"refresh"`
	Sync     pipeline.StageResult `json:"sync"`
	Analysis pipeline.StageResult `json:"analysis"`
	Profiles pipeline.StageResult `json:"profiles"`
}

type runPipelineResponse struct {
	response.Envelope
	RunID      uuid.UUID      `json:"run_id"`
	DurationMS int64          `json:"duration_ms"`
	Stages     pipelineStages `json:"stages"`
}

// NewRunPipelineHandler returns an http.HandlerFunc for POST /api/v1/pipeline/run.
// Stage failures are reported with success=false and a 200; only an
// overlapping or aborted run is an error response.
func NewRunPipelineHandler(runner PipelineRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := runner.Run(r.Context())
		switch {
		case errors.Is(err, pipeline.ErrAlreadyRunning):
			response.Error(w, http.StatusConflict, "PIPELINE_RUNNING", "A pipeline run is already in progress", nil)
			return
		case err != nil && res == nil:
			response.Error(w, http.StatusInternalServerError, "PIPELINE_FAILED", err.Error(), nil)
			return
		}

		response.JSON(w, runPipelineResponse{
			Envelope:   response.Envelope{Success: err == nil && res.OK()},
			RunID:      res.RunID,
			DurationMS: res.DurationMS,
			Stages: pipelineStages{
				Refresh:  res.Refresh,
				Sync:     res.Sync,
				Analysis: res.Analysis,
				Profiles: res.Profiles,
			},
		})
	}
}
