// Package kafka publishes the platform's integration events: batch ingestion
// reports, molecule property merges, submission transitions and result
// arrivals.  Downstream consumers (ELN sync, notification fan-out, analytics)
// live outside this module; delivery is at-least-once and consumers are
// expected to dedupe on the envelope event id.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
)

const (
	TopicBatchIngested           = "molecule.batch_ingested"
	TopicMoleculeValidated       = "molecule.validated"
	TopicMoleculePropertiesMerged = "molecule.properties_merged"
	TopicPredictionJobFailed     = "prediction.job_failed"
	TopicSubmissionTransitioned  = "submission.transitioned"
	TopicResultsUploaded         = "submission.results_uploaded"
	TopicDeadLetter              = "dead_letter.default"
)

// EventEnvelope is the standard wrapper around every published event.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Payloads
// ─────────────────────────────────────────────────────────────────────────────

// BatchIngestedPayload summarizes one completed upload.
type BatchIngestedPayload struct {
	BatchID      string    `json:"batch_id"`
	UploadedBy   string    `json:"uploaded_by"`
	TotalRows    int       `json:"total_rows"`
	AcceptedRows int       `json:"accepted_rows"`
	RejectedRows int       `json:"rejected_rows"`
	ExistingRows int       `json:"existing_rows"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// MoleculeValidatedPayload announces a molecule reaching VALID.
type MoleculeValidatedPayload struct {
	MoleculeID   string    `json:"molecule_id"`
	CanonicalKey string    `json:"canonical_key"`
	Format       string    `json:"format"`
	ValidatedAt  time.Time `json:"validated_at"`
}

// PropertiesMergedPayload announces predicted or measured values landing on a
// molecule record.
type PropertiesMergedPayload struct {
	MoleculeID string    `json:"molecule_id"`
	Properties []string  `json:"properties"`
	Origin     string    `json:"origin"` // "predicted" | "measured"
	MergedAt   time.Time `json:"merged_at"`
}

// PredictionJobFailedPayload announces a job that exhausted its retries.
type PredictionJobFailedPayload struct {
	JobID       string    `json:"job_id"`
	MoleculeIDs []string  `json:"molecule_ids"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	FailedAt    time.Time `json:"failed_at"`
}

// SubmissionTransitionedPayload announces a submission status change.
// Consumers must be idempotent on (SubmissionID, To).
type SubmissionTransitionedPayload struct {
	SubmissionID string    `json:"submission_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Actor        string    `json:"actor"`
	At           time.Time `json:"at"`
}

// ResultsUploadedPayload announces a result-set upload against a submission.
type ResultsUploadedPayload struct {
	SubmissionID string    `json:"submission_id"`
	ResultSetID  string    `json:"result_set_id"`
	RecordCount  int       `json:"record_count"`
	QCFailed     int       `json:"qc_failed"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Envelope helpers
// ─────────────────────────────────────────────────────────────────────────────

// NewEventEnvelope wraps a payload in a versioned envelope.
func NewEventEnvelope(eventType string, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the raw payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return apperrors.New(apperrors.ErrCodeSerialization, "event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// Encode serializes the envelope for the wire.
func (e *EventEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to marshal event envelope")
	}
	return data, nil
}
