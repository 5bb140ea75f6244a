package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// PredictionHandler serves the prediction job operator surface.
type PredictionHandler struct {
	predictions prediction.Service
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(svc prediction.Service) *PredictionHandler {
	return &PredictionHandler{predictions: svc}
}

// QueueDepths handles GET /predictions/queue.
func (h *PredictionHandler) QueueDepths(w http.ResponseWriter, r *http.Request) {
	depths, err := h.predictions.QueueDepths(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"states": depths})
}

// RetriggerResponse reports the job created by a retrigger.
type RetriggerResponse struct {
	JobID common.ID `json:"job_id"`
}

// Retrigger handles POST /predictions/{jobID}/retrigger.  Only terminally
// failed jobs can be retriggered.
func (h *PredictionHandler) Retrigger(w http.ResponseWriter, r *http.Request) {
	jobID := common.ID(chi.URLParam(r, "jobID"))
	freshID, err := h.predictions.Retrigger(r.Context(), jobID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RetriggerResponse{JobID: freshID})
}
