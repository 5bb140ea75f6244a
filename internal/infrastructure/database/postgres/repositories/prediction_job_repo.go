package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

const jobColumns = `id, molecule_ids, properties, state, attempts,
       next_retry_at, last_error, created_at, updated_at, version`

// PredictionJobRepository is the PostgreSQL implementation of the durable
// prediction job queue.
type PredictionJobRepository struct {
	db     DB
	logger logging.Logger
}

// NewPredictionJobRepository constructs a ready-to-use repository.
func NewPredictionJobRepository(db DB, logger logging.Logger) *PredictionJobRepository {
	return &PredictionJobRepository{db: db, logger: logger.Named("prediction_job_repo")}
}

var _ prediction.Repository = (*PredictionJobRepository)(nil)

// Save persists a new job.
func (r *PredictionJobRepository) Save(ctx context.Context, job *prediction.Job) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO prediction_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		string(job.ID), idsToStrings(job.MoleculeIDs), job.Properties, string(job.State), job.Attempts,
		job.NextRetryAt, job.LastError, job.CreatedAt, job.UpdatedAt, job.Version,
	)
	if err != nil {
		r.logger.Error("insert job failed", logging.String("job_id", string(job.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to insert prediction job")
	}
	return nil
}

// Update writes the job state with an optimistic version check.
func (r *PredictionJobRepository) Update(ctx context.Context, job *prediction.Job) error {
	newVersion := job.Version + 1

	tag, err := r.db.Exec(ctx, `
		UPDATE prediction_jobs
		SET state = $1, attempts = $2, next_retry_at = $3, last_error = $4,
		    updated_at = $5, version = $6
		WHERE id = $7 AND version = $8`,
		string(job.State), job.Attempts, job.NextRetryAt, job.LastError,
		time.Now().UTC(), newVersion, string(job.ID), job.Version,
	)
	if err != nil {
		r.logger.Error("update job failed", logging.String("job_id", string(job.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to update prediction job")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("prediction job was modified concurrently")
	}
	job.Version = newVersion
	return nil
}

// FindByID returns the job or a PredictionJobNotFound error.
func (r *PredictionJobRepository) FindByID(ctx context.Context, id common.ID) (*prediction.Job, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM prediction_jobs WHERE id = $1`, string(id))

	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrCodePredictionJobNotFound, "prediction job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to load prediction job")
	}
	return job, nil
}

// FindDue returns QUEUED jobs whose retry time has passed, oldest first.
func (r *PredictionJobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*prediction.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM prediction_jobs
		WHERE state = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3`,
		string(prediction.StateQueued), now, limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to query due jobs")
	}
	defer rows.Close()

	var jobs []*prediction.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read due jobs")
	}
	return jobs, nil
}

// ActiveMoleculeIDs returns every molecule referenced by a non-terminal job.
func (r *PredictionJobRepository) ActiveMoleculeIDs(ctx context.Context) (map[common.ID]struct{}, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT unnest(molecule_ids)::text
		FROM prediction_jobs
		WHERE state = ANY($1)`,
		[]string{string(prediction.StateQueued), string(prediction.StateInFlight)},
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to query active molecules")
	}
	defer rows.Close()

	out := make(map[common.ID]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan molecule id")
		}
		out[common.ID(id)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read active molecules")
	}
	return out, nil
}

// CountByState returns job counts grouped by state.
func (r *PredictionJobRepository) CountByState(ctx context.Context) (map[prediction.State]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT state, COUNT(*) FROM prediction_jobs GROUP BY state`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to count jobs")
	}
	defer rows.Close()

	out := make(map[prediction.State]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan state count")
		}
		out[prediction.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read state counts")
	}
	return out, nil
}

// scanJob hydrates one job from a row.
func scanJob(row pgx.Row) (*prediction.Job, error) {
	var (
		job         prediction.Job
		id          string
		moleculeIDs []string
		state       string
	)
	err := row.Scan(
		&id, &moleculeIDs, &job.Properties, &state, &job.Attempts,
		&job.NextRetryAt, &job.LastError, &job.CreatedAt, &job.UpdatedAt, &job.Version,
	)
	if err != nil {
		return nil, err
	}
	job.ID = common.ID(id)
	job.MoleculeIDs = stringsToIDs(moleculeIDs)
	job.State = prediction.State(state)
	return &job, nil
}
