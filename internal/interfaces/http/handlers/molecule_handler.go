package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/ingestion"
	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// MoleculeReader is the read-side lookup the handler needs; the molecule
// repository satisfies it.
type MoleculeReader interface {
	FindByID(ctx context.Context, id common.ID) (*domainMol.Molecule, error)
}

// MoleculeHandler serves batch upload and molecule lookup.
type MoleculeHandler struct {
	ingestion ingestion.Service
	molecules MoleculeReader
	// maxFileBytes caps the upload body before any row parsing happens.
	maxFileBytes int64
}

// NewMoleculeHandler creates a MoleculeHandler.
func NewMoleculeHandler(svc ingestion.Service, molecules MoleculeReader, maxFileBytes int64) *MoleculeHandler {
	return &MoleculeHandler{
		ingestion:    svc,
		molecules:    molecules,
		maxFileBytes: maxFileBytes,
	}
}

// Upload handles POST /molecules/upload.  The body is either a raw CSV
// upload or a multipart form with a "file" part.  The response is the
// per-row batch report; row rejections are part of the report, not an
// error status.
func (h *MoleculeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	if userID == "" {
		writeAppError(w, apperrors.InvalidParam("missing "+middleware.HeaderUserID+" header"))
		return
	}

	if h.maxFileBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes)
	}

	reader, err := uploadReader(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	report, err := h.ingestion.Ingest(r.Context(), ingestion.NewCSVSource(reader), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Get handles GET /molecules/{moleculeID}.
func (h *MoleculeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "moleculeID"))
	m, err := h.molecules.FindByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.ToDTO())
}

// uploadReader picks the CSV stream out of the request: the "file" part of
// a multipart form, or the body itself for direct CSV posts.
func uploadReader(r *http.Request) (io.Reader, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return r.Body, nil
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, apperrors.InvalidParam("multipart upload requires a \"file\" part")
	}
	return file, nil
}
