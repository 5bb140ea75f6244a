package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/result"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

const resultSetColumns = `id, submission_id, uploaded_by, reviewed, reviewed_by,
       reviewed_at, created_at, updated_at, version`

var recordColumns = []string{
	"id", "result_set_id", "molecule_id", "property_values",
	"raw_data_ref", "metadata", "qc_status", "qc_notes", "created_at",
}

// ResultRepository is the PostgreSQL implementation of the result set store.
// The header row and its records are written in one transaction; records are
// bulk-loaded through the COPY protocol.
type ResultRepository struct {
	db     DB
	logger logging.Logger
}

// NewResultRepository constructs a ready-to-use repository.
func NewResultRepository(db DB, logger logging.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: logger.Named("result_repo")}
}

var _ result.Repository = (*ResultRepository)(nil)

// Save persists a new result set together with its records.
func (r *ResultRepository) Save(ctx context.Context, rs *result.ResultSet) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to begin result transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO result_sets (`+resultSetColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		string(rs.ID), string(rs.SubmissionID), string(rs.UploadedBy), rs.Reviewed,
		string(rs.ReviewedBy), rs.ReviewedAt, rs.CreatedAt, rs.UpdatedAt, rs.Version,
	)
	if err != nil {
		r.logger.Error("insert result set failed", logging.String("result_set_id", string(rs.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to insert result set")
	}

	if len(rs.Records) > 0 {
		if err := copyRecords(ctx, tx, rs.Records); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to commit result set")
	}
	return nil
}

// Update writes the result set header with an optimistic version check.
// Records are append-only and never rewritten here.
func (r *ResultRepository) Update(ctx context.Context, rs *result.ResultSet) error {
	newVersion := rs.Version + 1

	tag, err := r.db.Exec(ctx, `
		UPDATE result_sets
		SET reviewed = $1, reviewed_by = $2, reviewed_at = $3,
		    updated_at = $4, version = $5
		WHERE id = $6 AND version = $7`,
		rs.Reviewed, string(rs.ReviewedBy), rs.ReviewedAt,
		time.Now().UTC(), newVersion, string(rs.ID), rs.Version,
	)
	if err != nil {
		r.logger.Error("update result set failed", logging.String("result_set_id", string(rs.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to update result set")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("result set was modified concurrently")
	}
	rs.Version = newVersion
	return nil
}

// AppendRecords bulk-loads additional records onto an existing set.
func (r *ResultRepository) AppendRecords(ctx context.Context, resultSetID common.ID, records []*result.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		rec.ResultSetID = resultSetID
	}
	if err := copyRecords(ctx, r.db, records); err != nil {
		return err
	}
	r.logger.Debug("records appended",
		logging.String("result_set_id", string(resultSetID)),
		logging.Int("count", len(records)),
	)
	return nil
}

// FindByID returns the result set with its records or a ResultSetNotFound
// error.
func (r *ResultRepository) FindByID(ctx context.Context, id common.ID) (*result.ResultSet, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+resultSetColumns+`
		FROM result_sets WHERE id = $1`, string(id))

	rs, err := scanResultSet(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrCodeResultSetNotFound, "result set %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to load result set")
	}

	if err := r.loadRecords(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// FindBySubmission returns the newest result set for a submission with its
// records, or a ResultSetNotFound error when none exists yet.
func (r *ResultRepository) FindBySubmission(ctx context.Context, submissionID common.ID) (*result.ResultSet, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+resultSetColumns+`
		FROM result_sets
		WHERE submission_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, string(submissionID))

	rs, err := scanResultSet(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrCodeResultSetNotFound,
			"no result set for submission %s", submissionID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to load result set")
	}

	if err := r.loadRecords(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (r *ResultRepository) loadRecords(ctx context.Context, rs *result.ResultSet) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, result_set_id, molecule_id, property_values,
		       raw_data_ref, metadata, qc_status, qc_notes, created_at
		FROM result_records
		WHERE result_set_id = $1
		ORDER BY created_at`, string(rs.ID))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to query result records")
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan result record")
		}
		rs.Records = append(rs.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read result records")
	}
	return nil
}

// copyRecords bulk-loads records through the COPY protocol.  copier is either
// the pool or an open transaction.
func copyRecords(ctx context.Context, copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}, records []*result.Record) error {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		values, err := json.Marshal(rec.Values)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode property values")
		}
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode record metadata")
		}
		notes := rec.QCNotes
		if notes == nil {
			notes = []string{}
		}
		rows = append(rows, []any{
			string(rec.ID), string(rec.ResultSetID), string(rec.MoleculeID), values,
			rec.RawDataRef, metadata, string(rec.QCStatus), notes, rec.CreatedAt,
		})
	}

	if _, err := copier.CopyFrom(ctx, pgx.Identifier{"result_records"}, recordColumns, pgx.CopyFromRows(rows)); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to copy result records")
	}
	return nil
}

// scanResultSet hydrates the header row; records are loaded separately.
func scanResultSet(row pgx.Row) (*result.ResultSet, error) {
	var (
		rs         result.ResultSet
		id         string
		subID      string
		uploadedBy string
		reviewedBy string
	)
	err := row.Scan(
		&id, &subID, &uploadedBy, &rs.Reviewed, &reviewedBy,
		&rs.ReviewedAt, &rs.CreatedAt, &rs.UpdatedAt, &rs.Version,
	)
	if err != nil {
		return nil, err
	}
	rs.ID = common.ID(id)
	rs.SubmissionID = common.ID(subID)
	rs.UploadedBy = common.UserID(uploadedBy)
	rs.ReviewedBy = common.UserID(reviewedBy)
	return &rs, nil
}

// scanRecord hydrates one record row.
func scanRecord(row pgx.Row) (*result.Record, error) {
	var (
		rec          result.Record
		id           string
		resultSetID  string
		moleculeID   string
		valuesJSON   []byte
		metadataJSON []byte
		qcStatus     string
	)
	err := row.Scan(
		&id, &resultSetID, &moleculeID, &valuesJSON,
		&rec.RawDataRef, &metadataJSON, &qcStatus, &rec.QCNotes, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ID = common.ID(id)
	rec.ResultSetID = common.ID(resultSetID)
	rec.MoleculeID = common.ID(moleculeID)
	rec.QCStatus = result.QCStatus(qcStatus)
	if len(valuesJSON) > 0 {
		if err := json.Unmarshal(valuesJSON, &rec.Values); err != nil {
			return nil, err
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
