package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

const moleculeColumns = `id, canonical_key, raw_structure, format, validation_status,
       validation_error, properties, created_by, created_at, updated_at, version`

// MoleculeRepository is the PostgreSQL implementation of molecule.Repository.
type MoleculeRepository struct {
	db     DB
	logger logging.Logger
}

// NewMoleculeRepository constructs a ready-to-use MoleculeRepository.
func NewMoleculeRepository(db DB, logger logging.Logger) *MoleculeRepository {
	return &MoleculeRepository{db: db, logger: logger.Named("molecule_repo")}
}

var _ molecule.Repository = (*MoleculeRepository)(nil)

// Save persists a single molecule.  Properties are stored as JSONB.
func (r *MoleculeRepository) Save(ctx context.Context, m *molecule.Molecule) error {
	props, err := json.Marshal(m.Properties)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode properties")
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO molecules (`+moleculeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		string(m.ID), m.CanonicalKey, m.RawStructure, string(m.Format), string(m.ValidationStatus),
		m.ValidationError, props, string(m.CreatedBy), m.CreatedAt, m.UpdatedAt, m.Version,
	)
	if err != nil {
		r.logger.Error("insert molecule failed", logging.String("molecule_id", string(m.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to insert molecule")
	}
	return nil
}

// BatchSave bulk-inserts molecules through a COPY into a staging table
// followed by an insert that skips rows whose canonical key already exists.
// The staged COPY keeps the throughput of the COPY protocol while the final
// insert keeps re-ingestion idempotent.  Returns the canonical keys actually
// inserted.
func (r *MoleculeRepository) BatchSave(ctx context.Context, molecules []*molecule.Molecule) ([]string, error) {
	if len(molecules) == 0 {
		return nil, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to begin batch transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE molecules_stage
		(LIKE molecules INCLUDING DEFAULTS)
		ON COMMIT DROP`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to create staging table")
	}

	columns := []string{
		"id", "canonical_key", "raw_structure", "format", "validation_status",
		"validation_error", "properties", "created_by", "created_at", "updated_at", "version",
	}
	rows := make([][]any, 0, len(molecules))
	for _, m := range molecules {
		props, err := json.Marshal(m.Properties)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode properties")
		}
		rows = append(rows, []any{
			string(m.ID), m.CanonicalKey, m.RawStructure, string(m.Format), string(m.ValidationStatus),
			m.ValidationError, props, string(m.CreatedBy), m.CreatedAt, m.UpdatedAt, m.Version,
		})
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"molecules_stage"}, columns, pgx.CopyFromRows(rows)); err != nil {
		r.logger.Error("batch stage copy failed", logging.Int("count", len(molecules)), logging.Err(err))
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to stage molecules")
	}

	inserted, err := tx.Query(ctx, `
		INSERT INTO molecules (`+moleculeColumns+`)
		SELECT `+moleculeColumns+` FROM molecules_stage
		ON CONFLICT (canonical_key) DO NOTHING
		RETURNING canonical_key`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to merge staged molecules")
	}
	var keys []string
	for inserted.Next() {
		var key string
		if err := inserted.Scan(&key); err != nil {
			inserted.Close()
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan inserted key")
		}
		keys = append(keys, key)
	}
	inserted.Close()
	if err := inserted.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read inserted keys")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to commit batch")
	}

	r.logger.Debug("batch saved",
		logging.Int("staged", len(molecules)),
		logging.Int("inserted", len(keys)),
	)
	return keys, nil
}

// FindByID returns the molecule or a MoleculeNotFound error.
func (r *MoleculeRepository) FindByID(ctx context.Context, id common.ID) (*molecule.Molecule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+moleculeColumns+`
		FROM molecules WHERE id = $1`, string(id))

	m, err := scanMolecule(row)
	if err == pgx.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrCodeMoleculeNotFound, "molecule %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to load molecule")
	}
	return m, nil
}

// FindByCanonicalKeys returns persisted molecules keyed by canonical key.
func (r *MoleculeRepository) FindByCanonicalKeys(ctx context.Context, keys []string) (map[string]*molecule.Molecule, error) {
	out := make(map[string]*molecule.Molecule, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+moleculeColumns+`
		FROM molecules WHERE canonical_key = ANY($1)`, keys)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to query by canonical keys")
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMolecule(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan molecule")
		}
		out[m.CanonicalKey] = m
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read molecules")
	}
	return out, nil
}

// FindByIDs returns molecules keyed by id.  Missing ids are simply absent.
func (r *MoleculeRepository) FindByIDs(ctx context.Context, ids []common.ID) (map[common.ID]*molecule.Molecule, error) {
	out := make(map[common.ID]*molecule.Molecule, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+moleculeColumns+`
		FROM molecules WHERE id = ANY($1)`, idsToStrings(ids))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to query by ids")
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMolecule(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to scan molecule")
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to read molecules")
	}
	return out, nil
}

// MergeProperties writes the molecule's property map with an optimistic
// version check.  A lost race surfaces as ConcurrentModification so the
// caller re-reads and retries.
func (r *MoleculeRepository) MergeProperties(ctx context.Context, m *molecule.Molecule) error {
	props, err := json.Marshal(m.Properties)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode properties")
	}
	newVersion := m.Version + 1

	tag, err := r.db.Exec(ctx, `
		UPDATE molecules
		SET properties = $1, updated_at = $2, version = $3
		WHERE id = $4 AND version = $5`,
		props, time.Now().UTC(), newVersion, string(m.ID), m.Version,
	)
	if err != nil {
		r.logger.Error("merge properties failed", logging.String("molecule_id", string(m.ID)), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to merge properties")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("molecule was modified concurrently")
	}
	m.Version = newVersion
	return nil
}

// Count returns the number of persisted molecules.
func (r *MoleculeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM molecules`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDBQueryError, "failed to count molecules")
	}
	return n, nil
}

// scanMolecule hydrates one molecule from a row.
func scanMolecule(row pgx.Row) (*molecule.Molecule, error) {
	var (
		dto       mtypes.MoleculeDTO
		id        string
		format    string
		status    string
		createdBy string
		propsJSON []byte
	)
	err := row.Scan(
		&id, &dto.CanonicalKey, &dto.RawStructure, &format, &status,
		&dto.ValidationError, &propsJSON, &createdBy, &dto.CreatedAt, &dto.UpdatedAt, &dto.Version,
	)
	if err != nil {
		return nil, err
	}

	dto.ID = common.ID(id)
	dto.Format = mtypes.StructureFormat(format)
	dto.ValidationStatus = mtypes.ValidationStatus(status)
	dto.CreatedBy = common.UserID(createdBy)
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &dto.Properties); err != nil {
			return nil, err
		}
	}
	return molecule.FromDTO(dto), nil
}
