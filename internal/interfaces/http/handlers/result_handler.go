package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/results"
	domainRes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/result"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/storage/minio"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// ResultHandler serves result upload, review, and retrieval for a
// submission.
type ResultHandler struct {
	results   results.Service
	documents minio.DocumentStore
	// presignExpiry bounds how long a generated download link stays valid.
	presignExpiry time.Duration
}

// NewResultHandler creates a ResultHandler.  documents may be nil when no
// object store is configured; the download endpoint then answers 404.
func NewResultHandler(svc results.Service, documents minio.DocumentStore, presignExpiry time.Duration) *ResultHandler {
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &ResultHandler{
		results:       svc,
		documents:     documents,
		presignExpiry: presignExpiry,
	}
}

// Attach handles POST /submissions/{submissionID}/results.  The body is
// either a JSON result payload or a multipart form carrying a "payload"
// JSON part plus an optional "document" part with the raw instrument
// export.
func (h *ResultHandler) Attach(w http.ResponseWriter, r *http.Request) {
	input := results.AttachInput{
		SubmissionID: submissionID(r),
		UploadedBy:   requestUserID(r),
	}

	if err := h.readAttachBody(r, &input); err != nil {
		writeAppError(w, err)
		return
	}

	outcome, err := h.results.AttachResults(r.Context(), input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// Review handles POST /submissions/{submissionID}/review.  The review
// merges QC-passed measurements onto the molecules and completes the
// submission.  The caller's role gates the completion edge.
func (h *ResultHandler) Review(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.results.ReviewResults(r.Context(), submissionID(r), requestUserID(r), requestRole(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// RecordResponse is the transfer shape for one result record.
type RecordResponse struct {
	ID         common.ID          `json:"id"`
	MoleculeID common.ID          `json:"molecule_id"`
	Values     mtypes.PropertyMap `json:"values"`
	RawDataRef string             `json:"raw_data_ref,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
	QCStatus   domainRes.QCStatus `json:"qc_status"`
	QCNotes    []string           `json:"qc_notes,omitempty"`
}

// ResultSetResponse is the transfer shape for a submission's result set.
type ResultSetResponse struct {
	ID           common.ID        `json:"id"`
	SubmissionID common.ID        `json:"submission_id"`
	UploadedBy   common.UserID    `json:"uploaded_by"`
	Reviewed     bool             `json:"reviewed"`
	ReviewedBy   common.UserID    `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time       `json:"reviewed_at,omitempty"`
	Records      []RecordResponse `json:"records"`
}

// Get handles GET /submissions/{submissionID}/results.
func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	rs, err := h.results.GetResultSet(r.Context(), submissionID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}

	resp := ResultSetResponse{
		ID:           rs.ID,
		SubmissionID: rs.SubmissionID,
		UploadedBy:   rs.UploadedBy,
		Reviewed:     rs.Reviewed,
		ReviewedBy:   rs.ReviewedBy,
		ReviewedAt:   rs.ReviewedAt,
		Records:      make([]RecordResponse, len(rs.Records)),
	}
	for i, rec := range rs.Records {
		resp.Records[i] = RecordResponse{
			ID:         rec.ID,
			MoleculeID: rec.MoleculeID,
			Values:     rec.Values,
			RawDataRef: rec.RawDataRef,
			Metadata:   rec.Metadata,
			QCStatus:   rec.QCStatus,
			QCNotes:    rec.QCNotes,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DocumentURLResponse carries a time-limited download link.
type DocumentURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentURL handles GET /submissions/{submissionID}/results/document.
// It presigns a download link for the archived instrument export named by
// the filename query parameter.
func (h *ResultHandler) DocumentURL(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		writeAppError(w, apperrors.New(apperrors.ErrCodeResultSetNotFound,
			"no document archive is configured"))
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeAppError(w, apperrors.InvalidParam("filename query parameter is required"))
		return
	}

	subID := submissionID(r)
	rs, err := h.results.GetResultSet(r.Context(), subID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	key := minio.ResultDocumentKey(string(subID), string(rs.ID), filename)
	url, err := h.documents.PresignedURL(r.Context(), key, h.presignExpiry)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentURLResponse{
		URL:       url,
		ExpiresAt: time.Now().Add(h.presignExpiry),
	})
}

// readAttachBody fills input from a JSON or multipart request body.
func (h *ResultHandler) readAttachBody(r *http.Request, input *results.AttachInput) error {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var payload subtypes.ResultPayload
		if err := decodeJSON(r, &payload); err != nil {
			return err
		}
		input.Payload = payload
		return nil
	}

	raw := r.FormValue("payload")
	if raw == "" {
		return apperrors.InvalidParam("multipart upload requires a \"payload\" part")
	}
	if err := json.Unmarshal([]byte(raw), &input.Payload); err != nil {
		return apperrors.InvalidParam("payload part is not valid JSON: " + err.Error())
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		// The raw document is optional.
		return nil
	}
	defer file.Close()

	doc, err := io.ReadAll(file)
	if err != nil {
		return apperrors.InvalidParam("failed to read document part: " + err.Error())
	}
	input.RawDocument = doc
	input.Filename = header.Filename
	input.ContentType = header.Header.Get("Content-Type")
	return nil
}
