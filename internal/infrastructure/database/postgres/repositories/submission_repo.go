package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/submission"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

const submissionColumns = `id, cro_service, cro_id, created_by, status, molecule_ids,
       snapshot_ids, price, turnaround_days, result_set_id, status_times,
       created_at, updated_at, version`

// SubmissionRepository is the PostgreSQL implementation of the submission
// aggregate store.  Status and its timestamp live in the same row so the
// Update write keeps them atomic.
type SubmissionRepository struct {
	db     DB
	logger logging.Logger
}

// NewSubmissionRepository constructs a ready-to-use repository.
func NewSubmissionRepository(db DB, logger logging.Logger) *SubmissionRepository {
	return &SubmissionRepository{db: db, logger: logger.Named("submission_repo")}
}

var _ submission.Repository = (*SubmissionRepository)(nil)

// Save persists a new submission.
func (r *SubmissionRepository) Save(ctx context.Context, s *submission.Submission) error {
	statusTimes, err := encodeStatusTimes(s.StatusTimes)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		string(s.ID), s.CROService, string(s.CROID), string(s.CreatedBy), string(s.Status),
		idsToStrings(s.MoleculeIDs), idsToStrings(s.SnapshotIDs), s.Price, s.TurnaroundDays,
		nullableID(s.ResultSetID), statusTimes, s.CreatedAt, s.UpdatedAt, s.Version,
	)
	if err != nil {
		r.logger.Error("insert submission failed", logging.String("submission_id", string(s.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to insert submission")
	}
	return nil
}

// Update writes the full aggregate with an optimistic version check.  A lost
// race returns ConcurrentModification and the caller must re-read.
func (r *SubmissionRepository) Update(ctx context.Context, s *submission.Submission) error {
	statusTimes, err := encodeStatusTimes(s.StatusTimes)
	if err != nil {
		return err
	}
	newVersion := s.Version + 1

	tag, err := r.db.Exec(ctx, `
		UPDATE submissions
		SET status = $1, molecule_ids = $2, snapshot_ids = $3, price = $4,
		    turnaround_days = $5, result_set_id = $6, status_times = $7,
		    updated_at = $8, version = $9
		WHERE id = $10 AND version = $11`,
		string(s.Status), idsToStrings(s.MoleculeIDs), idsToStrings(s.SnapshotIDs), s.Price,
		s.TurnaroundDays, nullableID(s.ResultSetID), statusTimes,
		time.Now().UTC(), newVersion, string(s.ID), s.Version,
	)
	if err != nil {
		r.logger.Error("update submission failed", logging.String("submission_id", string(s.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to update submission")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("submission was modified concurrently")
	}
	s.Version = newVersion
	return nil
}

// FindByID returns the submission or a SubmissionNotFound error.
func (r *SubmissionRepository) FindByID(ctx context.Context, id common.ID) (*submission.Submission, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions WHERE id = $1`, string(id))

	s, err := scanSubmission(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrCodeSubmissionNotFound, "submission %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to load submission")
	}
	return s, nil
}

// ListByStatus returns submissions in the given status, newest first.
func (r *SubmissionRepository) ListByStatus(ctx context.Context, status subtypes.Status, page common.Pagination) ([]*submission.Submission, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE status = $1`, string(status)).Scan(&total)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to count submissions")
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		string(status), page.PageSize, page.Offset(),
	)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to list submissions by status")
	}
	defer rows.Close()

	out, err := collectSubmissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListByCreator returns submissions created by the given user, newest first.
func (r *SubmissionRepository) ListByCreator(ctx context.Context, userID common.UserID, page common.Pagination) ([]*submission.Submission, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE created_by = $1`, string(userID)).Scan(&total)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to count submissions")
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE created_by = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		string(userID), page.PageSize, page.Offset(),
	)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to list submissions by creator")
	}
	defer rows.Close()

	out, err := collectSubmissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CountByStatus returns submission counts grouped by status.
func (r *SubmissionRepository) CountByStatus(ctx context.Context) (map[subtypes.Status]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to count submissions")
	}
	defer rows.Close()

	out := make(map[subtypes.Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan status count")
		}
		out[subtypes.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read status counts")
	}
	return out, nil
}

func collectSubmissions(rows pgx.Rows) ([]*submission.Submission, error) {
	var out []*submission.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan submission")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read submissions")
	}
	return out, nil
}

// scanSubmission hydrates one submission from a row.
func scanSubmission(row pgx.Row) (*submission.Submission, error) {
	var (
		dto             subtypes.SubmissionDTO
		id              string
		croID           string
		createdBy       string
		status          string
		moleculeIDs     []string
		snapshotIDs     []string
		resultSetID     *string
		statusTimesJSON []byte
	)
	err := row.Scan(
		&id, &dto.CROService, &croID, &createdBy, &status, &moleculeIDs,
		&snapshotIDs, &dto.Price, &dto.TurnaroundDay, &resultSetID, &statusTimesJSON,
		&dto.CreatedAt, &dto.UpdatedAt, &dto.Version,
	)
	if err != nil {
		return nil, err
	}

	dto.ID = common.ID(id)
	dto.CROID = common.CROID(croID)
	dto.CreatedBy = common.UserID(createdBy)
	dto.Status = subtypes.Status(status)
	dto.MoleculeIDs = stringsToIDs(moleculeIDs)
	dto.SnapshotIDs = stringsToIDs(snapshotIDs)
	if resultSetID != nil {
		dto.ResultSetID = common.ID(*resultSetID)
	}
	if len(statusTimesJSON) > 0 {
		if err := json.Unmarshal(statusTimesJSON, &dto.StatusTimes); err != nil {
			return nil, err
		}
	}
	return submission.FromDTO(dto), nil
}

// encodeStatusTimes serializes the per-status timestamps into JSONB.
func encodeStatusTimes(times map[subtypes.Status]time.Time) ([]byte, error) {
	if times == nil {
		times = map[subtypes.Status]time.Time{}
	}
	b, err := json.Marshal(times)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode status times")
	}
	return b, nil
}

// nullableID maps the zero ID to SQL NULL.
func nullableID(id common.ID) *string {
	if id == "" {
		return nil
	}
	s := string(id)
	return &s
}
