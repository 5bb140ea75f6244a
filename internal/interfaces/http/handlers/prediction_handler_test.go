package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainPred "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/prediction"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

func predictionTestHandler(svc *fakePrediction) http.Handler {
	h := NewPredictionHandler(svc)
	return mountWithActor(func(r chi.Router) {
		r.Get("/predictions/queue", h.QueueDepths)
		r.Post("/predictions/{jobID}/retrigger", h.Retrigger)
	})
}

func TestQueueDepthsReportsStates(t *testing.T) {
	svc := &fakePrediction{depths: map[domainPred.State]int64{
		domainPred.StateQueued:   4,
		domainPred.StateInFlight: 1,
	}}
	h := predictionTestHandler(svc)

	rec := doRequest(h, http.MethodGet, "/predictions/queue", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		States map[string]int64 `json:"states"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(4), resp.States[string(domainPred.StateQueued)])
	assert.Equal(t, int64(1), resp.States[string(domainPred.StateInFlight)])
}

func TestRetriggerReturnsFreshJobID(t *testing.T) {
	svc := &fakePrediction{retriggerID: "job-fresh"}
	h := predictionTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/predictions/job-dead/retrigger", "", nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, common.ID("job-dead"), svc.gotJobID)

	var resp RetriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, common.ID("job-fresh"), resp.JobID)
}

func TestRetriggerLiveJobMapsToConflict(t *testing.T) {
	svc := &fakePrediction{err: apperrors.InvalidState("job is not terminally failed")}
	h := predictionTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/predictions/job-live/retrigger", "", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetriggerUnknownJobMapsToNotFound(t *testing.T) {
	svc := &fakePrediction{err: apperrors.Newf(apperrors.ErrCodePredictionJobNotFound, "job missing not found")}
	h := predictionTestHandler(svc)

	rec := doRequest(h, http.MethodPost, "/predictions/missing/retrigger", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
