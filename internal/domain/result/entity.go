// Package result provides the domain model for experimental result sets
// uploaded against a CRO submission, including per-record quality control.
package result

import (
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// QCStatus is the quality-control outcome of one result record.
type QCStatus string

const (
	QCPassed QCStatus = "PASSED"
	QCFailed QCStatus = "FAILED"
)

// Record is one uploaded measurement row for one molecule.  QC failure never
// blocks storage; failed records stay flagged for human review.
type Record struct {
	ID          common.ID
	ResultSetID common.ID
	MoleculeID  common.ID
	Values      mtypes.PropertyMap
	RawDataRef  string
	Metadata    map[string]string
	QCStatus    QCStatus
	QCNotes     []string
	CreatedAt   time.Time
}

// ResultSet groups the records uploaded against one submission.  A submission
// reaches COMPLETED only after its result set is explicitly reviewed.
type ResultSet struct {
	common.BaseEntity

	SubmissionID common.ID
	UploadedBy   common.UserID
	Records      []*Record
	Reviewed     bool
	ReviewedBy   common.UserID
	ReviewedAt   *time.Time
}

// NewResultSet creates an empty result set for a submission.
func NewResultSet(submissionID common.ID, uploadedBy common.UserID) *ResultSet {
	now := time.Now().UTC()
	return &ResultSet{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		SubmissionID: submissionID,
		UploadedBy:   uploadedBy,
	}
}

// AddRecord appends an evaluated record to the set.
func (rs *ResultSet) AddRecord(r *Record) {
	r.ResultSetID = rs.ID
	rs.Records = append(rs.Records, r)
	rs.UpdatedAt = time.Now().UTC()
}

// MarkReviewed records the explicit review action that allows the submission
// to complete.  Reviewing an already-reviewed set is an error so that the
// audit trail keeps a single reviewer.
func (rs *ResultSet) MarkReviewed(reviewer common.UserID, now time.Time) error {
	if rs.Reviewed {
		return errors.InvalidState("result set is already reviewed")
	}
	if len(rs.Records) == 0 {
		return errors.InvalidState("cannot review an empty result set")
	}
	at := now.UTC()
	rs.Reviewed = true
	rs.ReviewedBy = reviewer
	rs.ReviewedAt = &at
	rs.UpdatedAt = at
	return nil
}

// PassedRecords returns the records that cleared quality control.
func (rs *ResultSet) PassedRecords() []*Record {
	var out []*Record
	for _, r := range rs.Records {
		if r.QCStatus == QCPassed {
			out = append(out, r)
		}
	}
	return out
}

// FailedCount returns the number of records flagged by quality control.
func (rs *ResultSet) FailedCount() int {
	n := 0
	for _, r := range rs.Records {
		if r.QCStatus == QCFailed {
			n++
		}
	}
	return n
}
