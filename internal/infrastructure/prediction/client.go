// Package prediction implements the HTTP client for the external property
// prediction engine.  One call carries one job's molecules and property list;
// call failures are classified as retryable or malformed so the scheduler can
// apply its retry policy.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
)

// StructureInput is one molecule sent to the engine.
type StructureInput struct {
	MoleculeID string `json:"molecule_id"`
	Structure  string `json:"structure"`
	Format     string `json:"format"`
}

// Request is one batched engine call.
type Request struct {
	Structures []StructureInput `json:"structures"`
	Properties []string         `json:"properties"`
}

// Result maps molecule id to predicted property values.
type Result map[string]map[string]float64

// EngineClient is the port the scheduler dispatches jobs through.
type EngineClient interface {
	// Predict runs one batch call.  The per-call timeout is enforced inside;
	// exceeding it returns ExternalCallFailure like any other call failure.
	Predict(ctx context.Context, req Request) (Result, error)
}

type engineResponse struct {
	Predictions []struct {
		MoleculeID string             `json:"molecule_id"`
		Values     map[string]float64 `json:"values"`
	} `json:"predictions"`
}

type httpEngineClient struct {
	baseURL     string
	apiKey      string
	callTimeout time.Duration
	httpClient  *http.Client
	logger      logging.Logger
}

// NewEngineClient builds the HTTP engine client from configuration.
func NewEngineClient(cfg config.PredictionConfig, log logging.Logger) (EngineClient, error) {
	if cfg.EngineURL == "" {
		return nil, apperrors.InvalidParam("prediction engine url is required")
	}
	return &httpEngineClient{
		baseURL:     cfg.EngineURL,
		apiKey:      cfg.APIKey,
		callTimeout: cfg.CallTimeout,
		httpClient:  &http.Client{},
		logger:      log.Named("engine_client"),
	}, nil
}

func (c *httpEngineClient) Predict(ctx context.Context, req Request) (Result, error) {
	if len(req.Structures) == 0 {
		return nil, apperrors.InvalidParam("engine call requires at least one structure")
	}

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode engine request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions/batch", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build engine request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("engine call failed",
			logging.Int("structures", len(req.Structures)),
			logging.Err(err),
		)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExternalCallFailure, "prediction engine call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a bounded slice of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("engine returned error status",
			logging.Int("status", resp.StatusCode),
			logging.String("body", string(snippet)),
		)
		return nil, apperrors.ExternalCallFailure(
			fmt.Sprintf("prediction engine returned status %d", resp.StatusCode))
	}

	var decoded engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMalformedEngineResponse,
			"failed to decode engine response")
	}

	result := make(Result, len(decoded.Predictions))
	for _, p := range decoded.Predictions {
		if p.MoleculeID == "" {
			return nil, apperrors.New(apperrors.ErrCodeMalformedEngineResponse,
				"engine response contains a prediction without a molecule id")
		}
		result[p.MoleculeID] = p.Values
	}

	// Every submitted molecule must be answered; a partial response cannot be
	// applied safely and counts as malformed.
	for _, s := range req.Structures {
		if _, ok := result[s.MoleculeID]; !ok {
			return nil, apperrors.Newf(apperrors.ErrCodeMalformedEngineResponse,
				"engine response is missing molecule %s", s.MoleculeID)
		}
	}

	c.logger.Debug("engine call succeeded",
		logging.Int("structures", len(req.Structures)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
