// Package ingestion provides the application-level coordinator for molecule
// batch uploads: streaming row validation, in-batch and cross-batch
// deduplication, chunked transactional persistence, and the per-row outcome
// report.
package ingestion

import (
	"context"
	"fmt"
	"time"

	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/redis"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/messaging/kafka"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// RowSource streams upload rows.  Next returns false when the stream is
// exhausted; a non-nil error aborts the whole upload.
type RowSource interface {
	Next() (mtypes.UploadRow, bool, error)
}

// PredictionScheduler queues newly persisted molecules for property
// prediction.  Implemented by the prediction application service.
type PredictionScheduler interface {
	Schedule(ctx context.Context, moleculeIDs []common.ID) error
}

// Service is the batch upload entry point.
type Service interface {
	// Ingest streams rows, validates and deduplicates them, persists accepted
	// molecules in chunks, and returns the per-row report.  The report is
	// returned (not an error) even when every row is rejected; an error means
	// the upload as a whole could not be processed.
	Ingest(ctx context.Context, rows RowSource, userID common.UserID) (*mtypes.BatchReportDTO, error)
}

// Config carries the ingestion knobs the coordinator enforces.
type Config struct {
	MaxRows   int
	ChunkSize int
}

type serviceImpl struct {
	cfg       Config
	validator *domainMol.Validator
	repo      domainMol.Repository
	scheduler PredictionScheduler
	cache     redis.Cache
	publisher kafka.Publisher
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// NewService wires the upload coordinator.  scheduler, cache and publisher
// are optional; nil disables the respective side effect.
func NewService(
	cfg Config,
	validator *domainMol.Validator,
	repo domainMol.Repository,
	scheduler PredictionScheduler,
	cache redis.Cache,
	publisher kafka.Publisher,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
) Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	return &serviceImpl{
		cfg:       cfg,
		validator: validator,
		repo:      repo,
		scheduler: scheduler,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("ingestion"),
	}
}

// pendingRow is an accepted row waiting for its chunk flush.
type pendingRow struct {
	row      int
	molecule *domainMol.Molecule
}

func (s *serviceImpl) Ingest(ctx context.Context, rows RowSource, userID common.UserID) (*mtypes.BatchReportDTO, error) {
	start := time.Now()
	report := &mtypes.BatchReportDTO{}

	// First occurrence of each canonical key in this upload wins; later rows
	// with the same key are rejected as in-batch duplicates.
	seen := make(map[string]int)
	var pending []pendingRow
	var newIDs []common.ID

	flush := func() error {
		ids, err := s.flushChunk(ctx, pending, report)
		if err != nil {
			return err
		}
		newIDs = append(newIDs, ids...)
		pending = pending[:0]
		return nil
	}

	for {
		row, ok, err := rows.Next()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "failed to read upload row")
		}
		if !ok {
			break
		}
		report.TotalRows++

		if s.cfg.MaxRows > 0 && report.TotalRows > s.cfg.MaxRows {
			return nil, apperrors.Newf(apperrors.ErrCodeBatchTooLarge,
				"upload exceeds the %d row limit", s.cfg.MaxRows)
		}

		result := s.validator.Validate(row.Structure, row.Format)
		if !result.OK {
			s.rejectRow(report, row.Row, result.Err)
			continue
		}

		if firstRow, dup := seen[result.CanonicalKey]; dup {
			s.rejectRow(report, row.Row, apperrors.DuplicateInBatch(
				fmt.Sprintf("structure already appears at row %d", firstRow)))
			continue
		}
		seen[result.CanonicalKey] = row.Row

		m := domainMol.New(row.Structure, row.Format, userID)
		if err := m.MarkValid(result.CanonicalKey); err != nil {
			return nil, err
		}
		pending = append(pending, pendingRow{row: row.Row, molecule: m})
		if len(pending) >= s.cfg.ChunkSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if len(pending) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}

	if s.scheduler != nil && len(newIDs) > 0 {
		if err := s.scheduler.Schedule(ctx, newIDs); err != nil {
			// Rows are already persisted; scheduling is recoverable via the
			// retrigger path, so the report still goes back to the caller.
			s.logger.Error("failed to schedule predictions",
				logging.Int("molecules", len(newIDs)), logging.Err(err))
		}
	}

	s.publishReport(ctx, userID, report)
	s.metrics.IngestBatchDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	s.metrics.IngestBatchRows.WithLabelValues().Observe(float64(report.TotalRows))

	s.logger.Info("upload processed",
		logging.Int("total_rows", report.TotalRows),
		logging.Int("accepted", len(report.Accepted)),
		logging.Int("rejected", len(report.Rejected)),
	)
	return report, nil
}

func (s *serviceImpl) rejectRow(report *mtypes.BatchReportDTO, row int, appErr *apperrors.AppError) {
	report.Rejected = append(report.Rejected, mtypes.RowError{
		Row:     row,
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	s.metrics.IngestRowsTotal.WithLabelValues("rejected").Inc()
}

// flushChunk persists one chunk transactionally.  Rows whose canonical key
// already exists from an earlier batch are accepted but flagged Existing and
// excluded from prediction scheduling.  Returns the ids of newly inserted
// molecules.
func (s *serviceImpl) flushChunk(ctx context.Context, pending []pendingRow, report *mtypes.BatchReportDTO) ([]common.ID, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	molecules := make([]*domainMol.Molecule, len(pending))
	for i, p := range pending {
		molecules[i] = p.molecule
	}

	insertedKeys, err := s.repo.BatchSave(ctx, molecules)
	if err != nil {
		s.metrics.IngestChunksTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	s.metrics.IngestChunksTotal.WithLabelValues("committed").Inc()

	inserted := make(map[string]struct{}, len(insertedKeys))
	for _, k := range insertedKeys {
		inserted[k] = struct{}{}
	}

	// Rows skipped by the conflict check belong to molecules persisted by an
	// earlier batch; resolve their ids, via cache where possible.
	existingIDs, err := s.resolveExisting(ctx, pending, inserted)
	if err != nil {
		return nil, err
	}

	var newIDs []common.ID
	for _, p := range pending {
		key := p.molecule.CanonicalKey
		if _, ok := inserted[key]; ok {
			report.Accepted = append(report.Accepted, mtypes.AcceptedRow{
				Row:        p.row,
				MoleculeID: p.molecule.ID,
			})
			newIDs = append(newIDs, p.molecule.ID)
			s.metrics.IngestRowsTotal.WithLabelValues("accepted").Inc()
			s.cacheKey(ctx, key, p.molecule.ID)
			continue
		}
		report.Accepted = append(report.Accepted, mtypes.AcceptedRow{
			Row:        p.row,
			MoleculeID: existingIDs[key],
			Existing:   true,
		})
		s.metrics.IngestRowsTotal.WithLabelValues("existing").Inc()
	}
	return newIDs, nil
}

// resolveExisting maps the canonical keys skipped by the insert to their
// persisted molecule ids.
func (s *serviceImpl) resolveExisting(ctx context.Context, pending []pendingRow, inserted map[string]struct{}) (map[string]common.ID, error) {
	out := make(map[string]common.ID)
	var missing []string

	for _, p := range pending {
		key := p.molecule.CanonicalKey
		if _, ok := inserted[key]; ok {
			continue
		}
		if s.cache != nil {
			var id string
			if err := s.cache.Get(ctx, redis.MoleculeKey(key), &id); err == nil {
				out[key] = common.ID(id)
				s.metrics.CacheOpsTotal.WithLabelValues("molecule_lookup", "hit").Inc()
				continue
			}
			s.metrics.CacheOpsTotal.WithLabelValues("molecule_lookup", "miss").Inc()
		}
		missing = append(missing, key)
	}

	if len(missing) > 0 {
		found, err := s.repo.FindByCanonicalKeys(ctx, missing)
		if err != nil {
			return nil, err
		}
		for key, m := range found {
			out[key] = m.ID
			s.cacheKey(ctx, key, m.ID)
		}
	}
	return out, nil
}

func (s *serviceImpl) cacheKey(ctx context.Context, canonicalKey string, id common.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, redis.MoleculeKey(canonicalKey), string(id), 0); err != nil {
		s.metrics.CacheOpsTotal.WithLabelValues("molecule_store", "error").Inc()
	}
}

func (s *serviceImpl) publishReport(ctx context.Context, userID common.UserID, report *mtypes.BatchReportDTO) {
	if s.publisher == nil {
		return
	}
	existing := 0
	for _, a := range report.Accepted {
		if a.Existing {
			existing++
		}
	}
	env, err := kafka.NewEventEnvelope("molecule.batch_ingested", "ingestion", kafka.BatchIngestedPayload{
		BatchID:      string(common.NewID()),
		UploadedBy:   string(userID),
		TotalRows:    report.TotalRows,
		AcceptedRows: len(report.Accepted),
		RejectedRows: len(report.Rejected),
		ExistingRows: existing,
		IngestedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to build ingest event", logging.Err(err))
		return
	}
	if err := s.publisher.PublishEnvelope(ctx, kafka.TopicBatchIngested, env.EventID, env); err != nil {
		s.metrics.EventsPublished.WithLabelValues(kafka.TopicBatchIngested, "error").Inc()
		s.logger.Warn("failed to publish ingest event", logging.Err(err))
		return
	}
	s.metrics.EventsPublished.WithLabelValues(kafka.TopicBatchIngested, "ok").Inc()
}
