package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/submission"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// SubmissionHandler serves the CRO submission lifecycle.
type SubmissionHandler struct {
	submissions submission.Service
}

// NewSubmissionHandler creates a SubmissionHandler.
func NewSubmissionHandler(svc submission.Service) *SubmissionHandler {
	return &SubmissionHandler{submissions: svc}
}

// CreateRequest is the body of POST /submissions.
type CreateRequest struct {
	CROService  string       `json:"cro_service"`
	CROID       common.CROID `json:"cro_id"`
	MoleculeIDs []common.ID  `json:"molecule_ids"`
}

// Create handles POST /submissions.
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	dto, err := h.submissions.Create(r.Context(), submission.CreateInput{
		CROService:  req.CROService,
		CROID:       req.CROID,
		MoleculeIDs: req.MoleculeIDs,
		CreatedBy:   requestUserID(r),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// Get handles GET /submissions/{submissionID}.
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	dto, err := h.submissions.Get(r.Context(), submissionID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// List handles GET /submissions filtered by ?status= or ?created_by=.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	input := submission.ListInput{
		Status:    subtypes.Status(r.URL.Query().Get("status")),
		CreatedBy: common.UserID(r.URL.Query().Get("created_by")),
		Page:      parsePagination(r),
	}
	result, err := h.submissions.List(r.Context(), input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StatusCounts handles GET /submissions/status-counts.
func (h *SubmissionHandler) StatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.submissions.StatusCounts(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"counts": counts})
}

// UpdateMoleculesRequest is the body of PUT /submissions/{id}/molecules.
type UpdateMoleculesRequest struct {
	MoleculeIDs []common.ID `json:"molecule_ids"`
}

// UpdateMolecules handles PUT /submissions/{submissionID}/molecules.  Only
// DRAFT submissions accept membership edits.
func (h *SubmissionHandler) UpdateMolecules(w http.ResponseWriter, r *http.Request) {
	var req UpdateMoleculesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	dto, err := h.submissions.UpdateMolecules(r.Context(), submissionID(r), req.MoleculeIDs)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// QuoteRequest is the body of POST /submissions/{id}/quote.
type QuoteRequest struct {
	Price          float64 `json:"price"`
	TurnaroundDays int     `json:"turnaround_days"`
}

// SetQuote handles POST /submissions/{submissionID}/quote.  Requires the
// CRO role.
func (h *SubmissionHandler) SetQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.Price <= 0 {
		writeAppError(w, apperrors.InvalidParam("price must be positive"))
		return
	}

	dto, err := h.submissions.SetQuote(r.Context(), submissionID(r), requestRole(r), req.Price, req.TurnaroundDays)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// TransitionRequest is the body of POST /submissions/{id}/transition.
type TransitionRequest struct {
	To subtypes.Status `json:"to"`
}

// Transition handles POST /submissions/{submissionID}/transition.  The
// acting role comes from the actor header; illegal edges and role
// violations map to conflict and forbidden statuses.
func (h *SubmissionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.To == "" {
		writeAppError(w, apperrors.InvalidParam("transition requires a target status"))
		return
	}

	dto, err := h.submissions.Transition(r.Context(), submissionID(r), req.To, requestRole(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func submissionID(r *http.Request) common.ID {
	return common.ID(chi.URLParam(r, "submissionID"))
}
