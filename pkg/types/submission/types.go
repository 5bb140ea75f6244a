// Package submission defines cross-layer types for the CRO submission
// lifecycle: the status enum, transition edges, and DTO shapes.
package submission

import (
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	moltypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// Status is the lifecycle status of a CRO submission.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPendingReview   Status = "PENDING_REVIEW"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusResultsUploaded Status = "RESULTS_UPLOADED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Edge is a directed status transition.
type Edge struct {
	From Status
	To   Status
}

// SubmissionDTO is the transfer shape for a submission record.
type SubmissionDTO struct {
	common.BaseEntity
	CROService    string               `json:"cro_service"`
	CROID         common.CROID         `json:"cro_id"`
	CreatedBy     common.UserID        `json:"created_by"`
	Status        Status               `json:"status"`
	MoleculeIDs   []common.ID          `json:"molecule_ids"`
	SnapshotIDs   []common.ID          `json:"snapshot_ids,omitempty"`
	Price         *float64             `json:"price,omitempty"`
	TurnaroundDay *int                 `json:"turnaround_days,omitempty"`
	ResultSetID   common.ID            `json:"result_set_id,omitempty"`
	StatusTimes   map[Status]time.Time `json:"status_times,omitempty"`
}

// ResultValue is one measured value for one molecule/property pair.
type ResultValue struct {
	MoleculeID common.ID `json:"molecule_id"`
	Property   string    `json:"property"`
	Value      float64   `json:"value"`
}

// ResultRecordPayload is one uploaded result record.
type ResultRecordPayload struct {
	MoleculeID common.ID             `json:"molecule_id"`
	Values     moltypes.PropertyMap  `json:"values"`
	RawDataRef string                `json:"raw_data_ref,omitempty"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
}

// ResultPayload is a batch of result records uploaded against a submission.
type ResultPayload struct {
	Records []ResultRecordPayload `json:"records"`
}
