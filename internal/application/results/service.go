// Package results provides the application service for experimental result
// reconciliation: accepting CRO result uploads against a submission, running
// per-record quality control, and merging reviewed measurements back onto
// molecule records.
package results

import (
	"context"
	"time"

	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	domainRes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/result"
	domainSub "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/submission"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/messaging/kafka"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/storage/minio"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// mergeRetries bounds re-read attempts when a measured-value merge loses an
// optimistic concurrency race.
const mergeRetries = 3

// AttachInput carries one result upload against a submission.
type AttachInput struct {
	SubmissionID common.ID
	Payload      subtypes.ResultPayload
	UploadedBy   common.UserID
	// RawDocument optionally carries the original instrument export; it is
	// archived in object storage next to the result set.
	RawDocument []byte
	Filename    string
	ContentType string
}

// AttachResult reports the outcome of one upload.
type AttachResult struct {
	ResultSetID common.ID
	Stored      int
	QCFailed    int
}

// ReviewResult reports the outcome of a review action.
type ReviewResult struct {
	ResultSetID common.ID
	// MergedMolecules counts molecules that received measured values.
	MergedMolecules int
	Submission      *subtypes.SubmissionDTO
}

// Service is the result reconciliation entry point.
type Service interface {
	// AttachResults stores uploaded records against the submission's result
	// set, evaluating quality control per record.  QC failure flags the
	// record but never blocks storage.  The first upload advances the
	// submission to RESULTS_UPLOADED.
	AttachResults(ctx context.Context, input AttachInput) (*AttachResult, error)

	// ReviewResults marks the submission's result set reviewed, merges the
	// QC-passed measurements onto the molecule records, and completes the
	// submission.  Completion is a role-gated transition; a role that may not
	// drive it gets RoleNotPermitted and nothing is recorded.
	ReviewResults(ctx context.Context, submissionID common.ID, reviewer common.UserID, role common.ActorRole) (*ReviewResult, error)

	// GetResultSet returns the submission's result set with its records.
	GetResultSet(ctx context.Context, submissionID common.ID) (*domainRes.ResultSet, error)
}

type serviceImpl struct {
	qc          domainRes.QCConfig
	results     domainRes.Repository
	submissions domainSub.Repository
	molecules   domainMol.Repository
	documents   minio.DocumentStore
	publisher   kafka.Publisher
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
	now         func() time.Time
}

// NewService wires the result reconciliation service.  documents and
// publisher are optional.
func NewService(
	qc domainRes.QCConfig,
	results domainRes.Repository,
	submissions domainSub.Repository,
	molecules domainMol.Repository,
	documents minio.DocumentStore,
	publisher kafka.Publisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if qc.PlausibleRanges == nil {
		qc.PlausibleRanges = domainRes.DefaultPlausibleRanges
	}
	return &serviceImpl{
		qc:          qc,
		results:     results,
		submissions: submissions,
		molecules:   molecules,
		documents:   documents,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger.Named("results"),
		now:         time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Attach
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) AttachResults(ctx context.Context, input AttachInput) (*AttachResult, error) {
	if len(input.Payload.Records) == 0 {
		return nil, apperrors.InvalidParam("result upload contains no records")
	}

	sub, err := s.submissions.FindByID(ctx, input.SubmissionID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case subtypes.StatusInProgress, subtypes.StatusResultsUploaded:
	default:
		return nil, apperrors.InvalidState(
			"results can only be uploaded against an executing submission")
	}

	// Every record must reference a molecule from the frozen snapshot before
	// anything is stored.
	for _, rec := range input.Payload.Records {
		if !sub.InSnapshot(rec.MoleculeID) {
			return nil, apperrors.Newf(apperrors.ErrCodeUnknownMolecule,
				"molecule %s is not part of the submission snapshot", rec.MoleculeID)
		}
	}

	records := s.evaluateRecords(input.Payload.Records)
	qcFailed := 0
	for _, rec := range records {
		if rec.QCStatus == domainRes.QCFailed {
			qcFailed++
		}
	}

	resultSetID, firstUpload, err := s.storeRecords(ctx, sub, input.UploadedBy, records)
	if err != nil {
		return nil, err
	}

	s.archiveDocument(ctx, input, resultSetID)

	if firstUpload {
		if err := s.advanceToResultsUploaded(ctx, sub, resultSetID); err != nil {
			return nil, err
		}
	}

	s.publishResultsUploaded(ctx, sub.ID, resultSetID, len(records), qcFailed)
	outcome := "stored"
	if qcFailed > 0 {
		outcome = "qc_failed"
	}
	s.metrics.ResultSetsTotal.WithLabelValues(outcome).Inc()

	s.logger.Info("results attached",
		logging.String("submission_id", string(sub.ID)),
		logging.String("result_set_id", string(resultSetID)),
		logging.Int("records", len(records)),
		logging.Int("qc_failed", qcFailed),
	)
	return &AttachResult{
		ResultSetID: resultSetID,
		Stored:      len(records),
		QCFailed:    qcFailed,
	}, nil
}

// evaluateRecords runs quality control over the payload and builds domain
// records.  QC failure flags the record; it is stored either way.
func (s *serviceImpl) evaluateRecords(payload []subtypes.ResultRecordPayload) []*domainRes.Record {
	now := s.now().UTC()
	records := make([]*domainRes.Record, len(payload))
	for i, rec := range payload {
		status, notes := domainRes.Evaluate(rec.Values, s.qc)
		if status == domainRes.QCPassed {
			s.metrics.ResultRecordsTotal.WithLabelValues("accepted").Inc()
		} else {
			s.metrics.ResultRecordsTotal.WithLabelValues("rejected").Inc()
		}
		records[i] = &domainRes.Record{
			ID:         common.NewID(),
			MoleculeID: rec.MoleculeID,
			Values:     rec.Values,
			RawDataRef: rec.RawDataRef,
			Metadata:   rec.Metadata,
			QCStatus:   status,
			QCNotes:    notes,
			CreatedAt:  now,
		}
	}
	return records
}

// storeRecords persists the records, creating the submission's result set on
// the first upload and appending on later ones.
func (s *serviceImpl) storeRecords(ctx context.Context, sub *domainSub.Submission, uploadedBy common.UserID, records []*domainRes.Record) (common.ID, bool, error) {
	existing, err := s.results.FindBySubmission(ctx, sub.ID)
	if err == nil {
		if err := s.results.AppendRecords(ctx, existing.ID, records); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}
	if !apperrors.IsCode(err, apperrors.ErrCodeResultSetNotFound) {
		return "", false, err
	}

	rs := domainRes.NewResultSet(sub.ID, uploadedBy)
	for _, rec := range records {
		rs.AddRecord(rec)
	}
	if err := s.results.Save(ctx, rs); err != nil {
		return "", false, err
	}
	return rs.ID, true, nil
}

// advanceToResultsUploaded links the result set and moves the submission
// forward on behalf of the system role.
func (s *serviceImpl) advanceToResultsUploaded(ctx context.Context, sub *domainSub.Submission, resultSetID common.ID) error {
	if err := sub.AttachResultSet(resultSetID); err != nil {
		return err
	}
	if err := sub.Transition(subtypes.StatusResultsUploaded, common.RoleSystem, s.now()); err != nil {
		return err
	}
	if err := s.submissions.Update(ctx, sub); err != nil {
		return err
	}
	for _, ev := range sub.Events() {
		s.metrics.SubmissionTransitions.WithLabelValues(string(ev.From), string(ev.To)).Inc()
	}
	return nil
}

func (s *serviceImpl) archiveDocument(ctx context.Context, input AttachInput, resultSetID common.ID) {
	if s.documents == nil || len(input.RawDocument) == 0 {
		return
	}
	filename := input.Filename
	if filename == "" {
		filename = "upload.raw"
	}
	key := minio.ResultDocumentKey(string(input.SubmissionID), string(resultSetID), filename)
	if _, err := s.documents.Upload(ctx, key, input.RawDocument, input.ContentType); err != nil {
		s.metrics.ObjectStoreOps.WithLabelValues("archive_results", "error").Inc()
		s.logger.Warn("failed to archive raw result document",
			logging.String("key", key), logging.Err(err))
		return
	}
	s.metrics.ObjectStoreOps.WithLabelValues("archive_results", "ok").Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// Review
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) ReviewResults(ctx context.Context, submissionID common.ID, reviewer common.UserID, role common.ActorRole) (*ReviewResult, error) {
	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	rs, err := s.results.FindBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if rs.Reviewed {
		return nil, apperrors.InvalidState("result set is already reviewed")
	}

	// The completion edge is validated up front so a disallowed actor leaves
	// no trace on the result set.
	if err := domainSub.ValidateTransition(sub.Status, subtypes.StatusCompleted, role); err != nil {
		return nil, err
	}

	if err := rs.MarkReviewed(reviewer, s.now()); err != nil {
		return nil, err
	}
	if err := s.results.Update(ctx, rs); err != nil {
		return nil, err
	}

	merged := s.mergeMeasuredValues(ctx, rs)

	if err := sub.Transition(subtypes.StatusCompleted, role, s.now()); err != nil {
		return nil, err
	}
	if err := s.submissions.Update(ctx, sub); err != nil {
		return nil, err
	}
	for _, ev := range sub.Events() {
		s.metrics.SubmissionTransitions.WithLabelValues(string(ev.From), string(ev.To)).Inc()
	}

	s.logger.Info("results reviewed",
		logging.String("submission_id", string(submissionID)),
		logging.String("result_set_id", string(rs.ID)),
		logging.String("reviewer", string(reviewer)),
		logging.Int("merged_molecules", merged),
	)
	dto := sub.ToDTO()
	return &ReviewResult{
		ResultSetID:     rs.ID,
		MergedMolecules: merged,
		Submission:      &dto,
	}, nil
}

// mergeMeasuredValues writes QC-passed measurements onto the molecule
// records.  Measured values overwrite earlier predictions for the same
// property.  Individual merge failures are logged, not fatal; the review
// itself already succeeded.
func (s *serviceImpl) mergeMeasuredValues(ctx context.Context, rs *domainRes.ResultSet) int {
	merged := 0
	for _, rec := range rs.PassedRecords() {
		values := map[string]float64{}
		for name, v := range rec.Values {
			if v != nil {
				values[name] = *v
			}
		}
		if len(values) == 0 {
			continue
		}
		if err := s.mergeWithRetry(ctx, rec.MoleculeID, values); err != nil {
			s.logger.Error("failed to merge measured values",
				logging.String("molecule_id", string(rec.MoleculeID)), logging.Err(err))
			continue
		}
		merged++
		s.publishPropertiesMerged(ctx, rec.MoleculeID, values)
	}
	return merged
}

func (s *serviceImpl) mergeWithRetry(ctx context.Context, id common.ID, values map[string]float64) error {
	var lastErr error
	for attempt := 0; attempt < mergeRetries; attempt++ {
		m, err := s.molecules.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := m.MergeProperties(values); err != nil {
			return err
		}
		if err := s.molecules.MergeProperties(ctx, m); err != nil {
			if apperrors.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

func (s *serviceImpl) GetResultSet(ctx context.Context, submissionID common.ID) (*domainRes.ResultSet, error) {
	return s.results.FindBySubmission(ctx, submissionID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) publishResultsUploaded(ctx context.Context, submissionID, resultSetID common.ID, records, qcFailed int) {
	if s.publisher == nil {
		return
	}
	env, err := kafka.NewEventEnvelope("submission.results_uploaded", "results", kafka.ResultsUploadedPayload{
		SubmissionID: string(submissionID),
		ResultSetID:  string(resultSetID),
		RecordCount:  records,
		QCFailed:     qcFailed,
		UploadedAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to build results-uploaded event", logging.Err(err))
		return
	}
	if err := s.publisher.PublishEnvelope(ctx, kafka.TopicResultsUploaded, string(submissionID), env); err != nil {
		s.metrics.EventsPublished.WithLabelValues(kafka.TopicResultsUploaded, "error").Inc()
		s.logger.Warn("failed to publish results-uploaded event", logging.Err(err))
		return
	}
	s.metrics.EventsPublished.WithLabelValues(kafka.TopicResultsUploaded, "ok").Inc()
}

func (s *serviceImpl) publishPropertiesMerged(ctx context.Context, id common.ID, values map[string]float64) {
	if s.publisher == nil {
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	env, err := kafka.NewEventEnvelope("molecule.properties_merged", "results", kafka.PropertiesMergedPayload{
		MoleculeID: string(id),
		Properties: names,
		Origin:     "measured",
		MergedAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to build properties-merged event", logging.Err(err))
		return
	}
	if err := s.publisher.PublishEnvelope(ctx, kafka.TopicMoleculePropertiesMerged, string(id), env); err != nil {
		s.metrics.EventsPublished.WithLabelValues(kafka.TopicMoleculePropertiesMerged, "error").Inc()
		s.logger.Warn("failed to publish properties-merged event", logging.Err(err))
		return
	}
	s.metrics.EventsPublished.WithLabelValues(kafka.TopicMoleculePropertiesMerged, "ok").Inc()
}
