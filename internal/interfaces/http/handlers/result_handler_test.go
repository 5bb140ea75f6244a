package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appres "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/results"
	domainRes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/result"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

func resultTestHandler(svc *fakeResults) http.Handler {
	h := NewResultHandler(svc, nil, 15*time.Minute)
	return mountWithActor(func(r chi.Router) {
		r.Post("/submissions/{submissionID}/results", h.Attach)
		r.Get("/submissions/{submissionID}/results", h.Get)
		r.Get("/submissions/{submissionID}/results/document", h.DocumentURL)
		r.Post("/submissions/{submissionID}/review", h.Review)
	})
}

func fv(v float64) *float64 { return &v }

// fakeDocStore serves a fixed presigned URL and records the requested key.
type fakeDocStore struct {
	url string
}

func (f fakeDocStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return key, nil
}

func (f fakeDocStore) UploadStream(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	return key, nil
}

func (f fakeDocStore) Download(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (f fakeDocStore) Exists(ctx context.Context, key string) (bool, error)     { return true, nil }
func (f fakeDocStore) Delete(ctx context.Context, key string) error             { return nil }

func (f fakeDocStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return f.url + "/" + key, nil
}

func TestAttachResultsFromJSONBody(t *testing.T) {
	svc := &fakeResults{attach: &appres.AttachResult{ResultSetID: "rs-1", Stored: 1}}
	h := resultTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/submissions/sub-1/results",
		`{"records":[{"molecule_id":"mol-1","values":{"ic50":12.5}}]}`,
		map[string]string{
			middleware.HeaderUserID:    "cro-user",
			middleware.HeaderActorRole: "cro",
		})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, common.ID("sub-1"), svc.gotAttach.SubmissionID)
	assert.Equal(t, common.UserID("cro-user"), svc.gotAttach.UploadedBy)
	require.Len(t, svc.gotAttach.Payload.Records, 1)
	assert.Equal(t, common.ID("mol-1"), svc.gotAttach.Payload.Records[0].MoleculeID)
}

func TestAttachResultsFromMultipartWithDocument(t *testing.T) {
	svc := &fakeResults{attach: &appres.AttachResult{ResultSetID: "rs-1", Stored: 1}}
	h := resultTestHandler(svc)

	payload := subtypes.ResultPayload{Records: []subtypes.ResultRecordPayload{
		{MoleculeID: "mol-1", Values: mtypes.PropertyMap{"ic50": fv(3.2)}},
	}}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("payload", string(raw)))
	part, err := mw.CreateFormFile("document", "plate-7.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("well,value\nA1,3.2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions/sub-1/results", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.HeaderUserID, "cro-user")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "plate-7.csv", svc.gotAttach.Filename)
	assert.Equal(t, []byte("well,value\nA1,3.2\n"), svc.gotAttach.RawDocument)
	require.Len(t, svc.gotAttach.Payload.Records, 1)
}

func TestAttachResultsMultipartRequiresPayloadPart(t *testing.T) {
	h := resultTestHandler(&fakeResults{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no payload"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions/sub-1/results", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachToNonExecutingSubmissionMapsToConflict(t *testing.T) {
	svc := &fakeResults{err: apperrors.InvalidState("submission is not executing")}
	h := resultTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/submissions/sub-1/results",
		`{"records":[{"molecule_id":"mol-1","values":{"ic50":1}}]}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReviewCompletesSubmission(t *testing.T) {
	svc := &fakeResults{review: &appres.ReviewResult{
		ResultSetID:     "rs-1",
		MergedMolecules: 2,
		Submission: &subtypes.SubmissionDTO{
			BaseEntity: common.BaseEntity{ID: "sub-1"},
			Status:     subtypes.StatusCompleted,
		},
	}}
	h := resultTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/submissions/sub-1/review", "",
		map[string]string{middleware.HeaderUserID: "reviewer-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.UserID("reviewer-1"), svc.gotUser)
	// The actor middleware defaults an absent role header to pharma.
	assert.Equal(t, common.RolePharma, svc.gotRole)

	var resp appres.ReviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.MergedMolecules)
	assert.Equal(t, subtypes.StatusCompleted, resp.Submission.Status)
}

func TestReviewThreadsRoleFromHeader(t *testing.T) {
	svc := &fakeResults{err: apperrors.Newf(apperrors.ErrCodeRoleNotPermitted,
		"role cro may not move submission from RESULTS_UPLOADED to COMPLETED")}
	h := resultTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/submissions/sub-1/review", "",
		map[string]string{
			middleware.HeaderUserID:    "cro-user",
			middleware.HeaderActorRole: "cro",
		})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, common.RoleCRO, svc.gotRole)
}

func TestGetResultSetShapesRecords(t *testing.T) {
	rs := domainRes.NewResultSet("sub-1", "cro-user")
	rs.AddRecord(&domainRes.Record{
		ID:         "rec-1",
		MoleculeID: "mol-1",
		Values:     mtypes.PropertyMap{"ic50": fv(4.2)},
		QCStatus:   domainRes.QCPassed,
	})
	rs.AddRecord(&domainRes.Record{
		ID:         "rec-2",
		MoleculeID: "mol-2",
		Values:     mtypes.PropertyMap{"ic50": fv(-1)},
		QCStatus:   domainRes.QCFailed,
		QCNotes:    []string{"ic50 outside plausible range"},
	})
	svc := &fakeResults{resultSet: rs}
	h := resultTestHandler(svc)

	rec := doRequest(h, http.MethodGet, "/submissions/sub-1/results", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ResultSetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, common.ID("sub-1"), resp.SubmissionID)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, domainRes.QCPassed, resp.Records[0].QCStatus)
	assert.Equal(t, domainRes.QCFailed, resp.Records[1].QCStatus)
	assert.NotEmpty(t, resp.Records[1].QCNotes)
}

func TestGetResultSetBeforeUploadMapsToNotFound(t *testing.T) {
	svc := &fakeResults{err: apperrors.Newf(apperrors.ErrCodeResultSetNotFound, "no result set for submission sub-1")}
	h := resultTestHandler(svc)

	rec := doRequest(h, http.MethodGet, "/submissions/sub-1/results", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentURLRequiresFilename(t *testing.T) {
	rs := domainRes.NewResultSet("sub-1", "cro-user")
	h := NewResultHandler(&fakeResults{resultSet: rs}, fakeDocStore{url: "https://example"}, time.Minute)
	router := mountWithActor(func(r chi.Router) {
		r.Get("/submissions/{submissionID}/results/document", h.DocumentURL)
	})

	rec := doRequest(router, http.MethodGet, "/submissions/sub-1/results/document", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentURLPresignsArchivedExport(t *testing.T) {
	rs := domainRes.NewResultSet("sub-1", "cro-user")
	h := NewResultHandler(&fakeResults{resultSet: rs}, fakeDocStore{url: "https://minio.local"}, time.Minute)
	router := mountWithActor(func(r chi.Router) {
		r.Get("/submissions/{submissionID}/results/document", h.DocumentURL)
	})

	rec := doRequest(router, http.MethodGet, "/submissions/sub-1/results/document?filename=plate-7.csv", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DocumentURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://minio.local/results/sub-1/"+string(rs.ID)+"/plate-7.csv", resp.URL)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestDocumentURLWithoutArchiveMapsToNotFound(t *testing.T) {
	h := resultTestHandler(&fakeResults{})

	rec := doRequest(h, http.MethodGet, "/submissions/sub-1/results/document?filename=plate.csv", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
