package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/ingestion"
	apppred "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/prediction"
	appres "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/results"
	appsub "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/submission"
	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	domainPred "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/prediction"
	domainRes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/result"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// ─────────────────────────────────────────────────────────────────────────────
// Service fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeIngestion struct {
	report  *mtypes.BatchReportDTO
	err     error
	gotUser common.UserID
	gotRows []mtypes.UploadRow
}

var _ ingestion.Service = (*fakeIngestion)(nil)

func (f *fakeIngestion) Ingest(ctx context.Context, rows ingestion.RowSource, userID common.UserID) (*mtypes.BatchReportDTO, error) {
	f.gotUser = userID
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		f.gotRows = append(f.gotRows, row)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &mtypes.BatchReportDTO{TotalRows: len(f.gotRows)}, nil
}

type fakeMoleculeReader struct {
	molecules map[common.ID]*domainMol.Molecule
}

func (f *fakeMoleculeReader) FindByID(ctx context.Context, id common.ID) (*domainMol.Molecule, error) {
	if m, ok := f.molecules[id]; ok {
		return m, nil
	}
	return nil, apperrors.Newf(apperrors.ErrCodeMoleculeNotFound, "molecule %s not found", id)
}

type fakePrediction struct {
	depths      map[domainPred.State]int64
	retriggerID common.ID
	err         error
	gotJobID    common.ID
}

var _ apppred.Service = (*fakePrediction)(nil)

func (f *fakePrediction) Schedule(ctx context.Context, ids []common.ID) error { return f.err }

func (f *fakePrediction) RunCycle(ctx context.Context) (*apppred.CycleReport, error) {
	return &apppred.CycleReport{}, f.err
}

func (f *fakePrediction) Retrigger(ctx context.Context, jobID common.ID) (common.ID, error) {
	f.gotJobID = jobID
	if f.err != nil {
		return "", f.err
	}
	return f.retriggerID, nil
}

func (f *fakePrediction) QueueDepths(ctx context.Context) (map[domainPred.State]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.depths, nil
}

type fakeSubmission struct {
	dto     *subtypes.SubmissionDTO
	list    *appsub.ListResult
	counts  map[subtypes.Status]int64
	err     error
	gotRole common.ActorRole
	gotTo   subtypes.Status
	gotIn   appsub.CreateInput
	gotList appsub.ListInput
}

var _ appsub.Service = (*fakeSubmission)(nil)

func (f *fakeSubmission) Create(ctx context.Context, input appsub.CreateInput) (*subtypes.SubmissionDTO, error) {
	f.gotIn = input
	return f.dto, f.err
}

func (f *fakeSubmission) Get(ctx context.Context, id common.ID) (*subtypes.SubmissionDTO, error) {
	return f.dto, f.err
}

func (f *fakeSubmission) List(ctx context.Context, input appsub.ListInput) (*appsub.ListResult, error) {
	f.gotList = input
	return f.list, f.err
}

func (f *fakeSubmission) UpdateMolecules(ctx context.Context, id common.ID, ids []common.ID) (*subtypes.SubmissionDTO, error) {
	return f.dto, f.err
}

func (f *fakeSubmission) SetQuote(ctx context.Context, id common.ID, role common.ActorRole, price float64, days int) (*subtypes.SubmissionDTO, error) {
	f.gotRole = role
	return f.dto, f.err
}

func (f *fakeSubmission) Transition(ctx context.Context, id common.ID, to subtypes.Status, role common.ActorRole) (*subtypes.SubmissionDTO, error) {
	f.gotTo = to
	f.gotRole = role
	return f.dto, f.err
}

func (f *fakeSubmission) StatusCounts(ctx context.Context) (map[subtypes.Status]int64, error) {
	return f.counts, f.err
}

type fakeResults struct {
	attach    *appres.AttachResult
	review    *appres.ReviewResult
	resultSet *domainRes.ResultSet
	err       error
	gotAttach appres.AttachInput
	gotUser   common.UserID
	gotRole   common.ActorRole
}

var _ appres.Service = (*fakeResults)(nil)

func (f *fakeResults) AttachResults(ctx context.Context, input appres.AttachInput) (*appres.AttachResult, error) {
	f.gotAttach = input
	return f.attach, f.err
}

func (f *fakeResults) ReviewResults(ctx context.Context, id common.ID, reviewer common.UserID, role common.ActorRole) (*appres.ReviewResult, error) {
	f.gotUser = reviewer
	f.gotRole = role
	return f.review, f.err
}

func (f *fakeResults) GetResultSet(ctx context.Context, id common.ID) (*domainRes.ResultSet, error) {
	return f.resultSet, f.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Request helpers
// ─────────────────────────────────────────────────────────────────────────────

// mountWithActor mounts register on a chi router behind the actor
// middleware, matching the production route tree.
func mountWithActor(register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewActorMiddleware().Handler)
	r.Group(register)
	return r
}

func doRequest(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
