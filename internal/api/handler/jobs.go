package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/inboxlens/internal/api/response"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// JobReader returns the latest job. *batch.Tracker satisfies it.
type JobReader interface {
	Current(ctx context.Context, jobType string) (*models.Job, error)
}

var jobTypes = map[string]bool{
	models.JobTypeAnalysis:      true,
	models.JobTypeTokenRefresh:  true,
	models.JobTypeSourceSync:    true,
	models.JobTypeProfileUpdate: true,
}

type currentJobResponse struct {
	response.Envelope
	CurrentJob *models.Job `json:"current_job"`
}

// NewCurrentJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/current.
// The optional type query parameter narrows the lookup to one job type.
func NewCurrentJobHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobType := r.URL.Query().Get("type")
		if jobType != "" && !jobTypes[jobType] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown job type "+jobType, nil)
			return
		}

		job, err := jobs.Current(r.Context(), jobType)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
			return
		}
		response.JSON(w, currentJobResponse{Envelope: response.OK, CurrentJob: job})
	}
}
