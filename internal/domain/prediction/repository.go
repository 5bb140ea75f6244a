package prediction

import (
	"context"
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// Repository is the persistence contract for the durable prediction job
// queue, implemented by the PostgreSQL layer.
type Repository interface {
	// Save persists a new job.
	Save(ctx context.Context, job *Job) error

	// Update writes the job's state using an optimistic version check; a lost
	// race returns ConcurrentModification.
	Update(ctx context.Context, job *Job) error

	// FindByID returns the job or a PredictionJobNotFound error.
	FindByID(ctx context.Context, id common.ID) (*Job, error)

	// FindDue returns up to limit QUEUED jobs whose retry time has passed,
	// oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ActiveMoleculeIDs returns the ids of every molecule referenced by a
	// non-terminal job.  The scheduler excludes these when forming new jobs.
	ActiveMoleculeIDs(ctx context.Context) (map[common.ID]struct{}, error)

	// CountByState returns job counts grouped by state, for metrics and the
	// operator surface.
	CountByState(ctx context.Context) (map[State]int64, error)
}
