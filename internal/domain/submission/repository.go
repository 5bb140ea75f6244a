package submission

import (
	"context"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// Repository is the persistence contract for the submission aggregate,
// implemented by the PostgreSQL layer.
type Repository interface {
	// Save persists a new submission.
	Save(ctx context.Context, s *Submission) error

	// Update writes the submission using an optimistic version check; when a
	// competing writer got there first the call returns
	// ConcurrentModification and the caller must re-read.
	Update(ctx context.Context, s *Submission) error

	// FindByID returns the submission or a SubmissionNotFound error.
	FindByID(ctx context.Context, id common.ID) (*Submission, error)

	// ListByStatus returns submissions in the given status, newest first.
	ListByStatus(ctx context.Context, status subtypes.Status, page common.Pagination) ([]*Submission, int64, error)

	// ListByCreator returns submissions created by the given user, newest
	// first.
	ListByCreator(ctx context.Context, userID common.UserID, page common.Pagination) ([]*Submission, int64, error)

	// CountByStatus returns submission counts grouped by status.
	CountByStatus(ctx context.Context) (map[subtypes.Status]int64, error)
}
