package molecule

import (
	"context"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// Repository is the persistence contract for the molecule aggregate,
// implemented by the PostgreSQL layer.
type Repository interface {
	// Save persists one molecule.
	Save(ctx context.Context, m *Molecule) error

	// BatchSave persists molecules in bulk.  Rows whose canonical key already
	// exists are skipped; the returned slice holds the canonical keys that
	// were actually inserted.
	BatchSave(ctx context.Context, molecules []*Molecule) (inserted []string, err error)

	// FindByID returns the molecule or a MoleculeNotFound error.
	FindByID(ctx context.Context, id common.ID) (*Molecule, error)

	// FindByCanonicalKeys returns the persisted molecules matching any of the
	// supplied keys, keyed by canonical key.  Missing keys are absent from the
	// map, not an error.
	FindByCanonicalKeys(ctx context.Context, keys []string) (map[string]*Molecule, error)

	// FindByIDs returns the molecules for the supplied ids, keyed by id.
	// Missing ids are absent from the map.
	FindByIDs(ctx context.Context, ids []common.ID) (map[common.ID]*Molecule, error)

	// MergeProperties writes property values onto the molecule row using an
	// optimistic version check; a lost race returns ConcurrentModification.
	MergeProperties(ctx context.Context, m *Molecule) error

	// Count returns the number of persisted molecules.
	Count(ctx context.Context) (int64, error)
}
