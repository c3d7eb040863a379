package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/api/response"
	"github.com/kiranshivaraju/inboxlens/internal/batch"
)

// BatchStarter is the slice of the engine the handler needs.
type BatchStarter interface {
	StartBatch(ctx context.Context, req batch.BatchRequest) (*batch.BatchOutcome, error)
}

type startBatchRequest struct {
	BatchSize       *int   `json:"batch_size" validate:"omitempty,min=1,max=500"`
	ForceReanalysis bool   `json:"force_reanalysis"`
	Tenant          string `json:"tenant" validate:"omitempty,max=128"`
}

type startBatchResponse struct {
	response.Envelope
	JobID                 uuid.UUID         `json:"job_id"`
	BatchID               uuid.UUID         `json:"batch_id"`
	Status                string            `json:"status"`
	Selected              int               `json:"selected"`
	Processed             int               `json:"processed"`
	SuccessCount          int               `json:"success_count"`
	FailureCount          int               `json:"failure_count"`
	Errors                []batch.ItemError `json:"errors"`
	ContinuationScheduled bool              `json:"continuation_scheduled"`
}

// NewStartBatchHandler returns an http.HandlerFunc for POST /api/v1/batches.
// The batch runs synchronously; continuation runs happen in the background.
func NewStartBatchHandler(starter BatchStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startBatchRequest
		if err := decodeJSON(r, &req, true); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		breq := batch.BatchRequest{Force: req.ForceReanalysis, Tenant: req.Tenant}
		if req.BatchSize != nil {
			breq.BatchSize = *req.BatchSize
		}

		out, err := starter.StartBatch(r.Context(), breq)
		if err != nil {
			var details any
			if out != nil && out.Job != nil {
				details = map[string]any{"job_id": out.Job.ID}
			}
			response.Error(w, http.StatusInternalServerError, "BATCH_FAILED", err.Error(), details)
			return
		}

		response.JSON(w, startBatchResponse{
			Envelope:              response.OK,
			JobID:                 out.Job.ID,
			BatchID:               out.Result.BatchID,
			Status:                out.Job.Status,
			Selected:              out.Result.Selected,
			Processed:             out.Result.Processed,
			SuccessCount:          out.Result.SuccessCount,
			FailureCount:          out.Result.ErrorCount,
			Errors:                out.Result.Errors,
			ContinuationScheduled: out.ContinuationScheduled,
		})
	}
}
