package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/ingestion"
	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/handlers"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

type stubIngestion struct{}

func (stubIngestion) Ingest(ctx context.Context, rows ingestion.RowSource, userID common.UserID) (*mtypes.BatchReportDTO, error) {
	for {
		if _, ok, err := rows.Next(); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	return &mtypes.BatchReportDTO{}, nil
}

type stubMoleculeReader struct{}

func (stubMoleculeReader) FindByID(ctx context.Context, id common.ID) (*domainMol.Molecule, error) {
	return nil, apperrors.Newf(apperrors.ErrCodeMoleculeNotFound, "molecule %s not found", id)
}

func testRouter() http.Handler {
	logger := logging.NewNopLogger()
	return NewRouter(RouterConfig{
		MoleculeHandler:   handlers.NewMoleculeHandler(stubIngestion{}, stubMoleculeReader{}, 0),
		HealthHandler:     handlers.NewHealthHandler("test"),
		ActorMiddleware:   middleware.NewActorMiddleware(),
		CORSMiddleware:    middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()),
		LoggingMiddleware: middleware.NewLoggingMiddleware(logger, middleware.DefaultLoggingConfig()),
		Logger:            logger,
	})
}

func TestRouterServesProbeEndpoints(t *testing.T) {
	r := testRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouterDispatchesAPIRoutes(t *testing.T) {
	r := testRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/molecules/mol-x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "MOLB_005")
}

func TestRouterAppliesActorMiddleware(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/molecules/upload", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// No user header: the upload handler rejects the request.
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterSkipsNilHandlerGroups(t *testing.T) {
	r := testRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/queue", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterUnknownPathIs404(t *testing.T) {
	r := testRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
