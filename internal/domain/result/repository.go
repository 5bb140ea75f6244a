package result

import (
	"context"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// Repository is the persistence contract for result sets, implemented by the
// PostgreSQL layer.
type Repository interface {
	// Save persists a new result set with its records.
	Save(ctx context.Context, rs *ResultSet) error

	// Update writes the result set header using an optimistic version check.
	Update(ctx context.Context, rs *ResultSet) error

	// AppendRecords persists additional records onto an existing set.
	AppendRecords(ctx context.Context, resultSetID common.ID, records []*Record) error

	// FindByID returns the result set with its records or a
	// ResultSetNotFound error.
	FindByID(ctx context.Context, id common.ID) (*ResultSet, error)

	// FindBySubmission returns the open result set for a submission, or a
	// ResultSetNotFound error when none exists yet.
	FindBySubmission(ctx context.Context, submissionID common.ID) (*ResultSet, error)
}
