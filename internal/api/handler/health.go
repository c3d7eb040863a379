package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/inboxlens/internal/api/response"
)

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	response.Envelope
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		res := healthResponse{Database: "ok", Cache: "ok"}
		if err := db.Ping(ctx); err != nil {
			res.Database = "unavailable"
		}
		if err := cache.Ping(ctx); err != nil {
			res.Cache = "unavailable"
		}

		res.Success = res.Database == "ok" && res.Cache == "ok"
		status := http.StatusOK
		if !res.Success {
			status = http.StatusServiceUnavailable
		}
		response.Status(w, status, res)
	}
}
