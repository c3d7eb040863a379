package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/api/response"
)

// Requeuer returns items to pending.
type Requeuer interface {
	RequeueItems(ctx context.Context, ids []uuid.UUID) (int, error)
}

type requeueRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids" validate:"required,min=1,max=1000"`
}

type requeueResponse struct {
	response.Envelope
	Requeued int `json:"requeued"`
}

// NewRequeueHandler returns an http.HandlerFunc for POST /api/v1/items/requeue.
func NewRequeueHandler(items Requeuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req requeueRequest
		if err := decodeJSON(r, &req, false); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		n, err := items.RequeueItems(r.Context(), req.ItemIDs)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
			return
		}
		response.JSON(w, requeueResponse{Envelope: response.OK, Requeued: n})
	}
}
