package submission

import (
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// ─────────────────────────────────────────────────────────────────────────────
// Domain Events
// ─────────────────────────────────────────────────────────────────────────────

// TransitionedEvent is emitted on every status change.  Delivery is
// at-least-once; consumers must be idempotent on (SubmissionID, To).
type TransitionedEvent struct {
	SubmissionID common.ID
	From         subtypes.Status
	To           subtypes.Status
	At           time.Time
}

func (e TransitionedEvent) EventType() string { return "submission.transitioned" }

// ─────────────────────────────────────────────────────────────────────────────
// Submission Aggregate
// ─────────────────────────────────────────────────────────────────────────────

// Submission tracks a set of molecules handed to a CRO through its full
// review-to-completion lifecycle.  Membership is mutable only in DRAFT; the
// moment the submission is SUBMITTED the member list is frozen into an
// immutable snapshot.  Every status carries the timestamp of the transition
// that reached it, written atomically with the status itself.
type Submission struct {
	common.BaseEntity

	CROService  string
	CROID       common.CROID
	CreatedBy   common.UserID
	Status      subtypes.Status
	MoleculeIDs []common.ID
	// SnapshotIDs is the frozen membership captured on DRAFT → SUBMITTED.
	SnapshotIDs []common.ID
	// Price and TurnaroundDays are supplied by the CRO during review and are
	// immutable once execution begins.
	Price          *float64
	TurnaroundDays *int
	ResultSetID    common.ID
	StatusTimes    map[subtypes.Status]time.Time

	events []TransitionedEvent
}

// New creates a DRAFT submission for the given CRO service.
func New(croService string, croID common.CROID, createdBy common.UserID, moleculeIDs []common.ID) (*Submission, error) {
	if croService == "" {
		return nil, errors.InvalidParam("cro service is required")
	}
	if len(moleculeIDs) == 0 {
		return nil, errors.New(errors.ErrCodeEmptySubmission,
			"submission requires at least one molecule")
	}

	now := time.Now().UTC()
	ids := make([]common.ID, len(moleculeIDs))
	copy(ids, moleculeIDs)

	return &Submission{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		CROService:  croService,
		CROID:       croID,
		CreatedBy:   createdBy,
		Status:      subtypes.StatusDraft,
		MoleculeIDs: ids,
		StatusTimes: map[subtypes.Status]time.Time{subtypes.StatusDraft: now},
	}, nil
}

// SetMolecules replaces the member list.  Allowed only in DRAFT.
func (s *Submission) SetMolecules(moleculeIDs []common.ID) error {
	if s.Status != subtypes.StatusDraft {
		return errors.InvalidState("molecule membership is frozen once submitted")
	}
	if len(moleculeIDs) == 0 {
		return errors.New(errors.ErrCodeEmptySubmission,
			"submission requires at least one molecule")
	}
	ids := make([]common.ID, len(moleculeIDs))
	copy(ids, moleculeIDs)
	s.MoleculeIDs = ids
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SetQuote records the price and turnaround supplied during review.  The
// fields become immutable once execution begins.
func (s *Submission) SetQuote(price float64, turnaroundDays int) error {
	switch s.Status {
	case subtypes.StatusSubmitted, subtypes.StatusPendingReview, subtypes.StatusApproved:
	default:
		return errors.InvalidState("quote can only be set during review")
	}
	if price < 0 || turnaroundDays < 1 {
		return errors.InvalidParam("quote requires a non-negative price and a positive turnaround")
	}
	s.Price = &price
	s.TurnaroundDays = &turnaroundDays
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Transition moves the submission to the target status on behalf of role.
// The edge must be legal from the current status and permitted for the role.
// The status timestamp is written together with the status so a reader never
// observes one without the other.
func (s *Submission) Transition(to subtypes.Status, role common.ActorRole, now time.Time) error {
	if err := ValidateTransition(s.Status, to, role); err != nil {
		return err
	}

	// Edge-specific obligations.
	switch {
	case s.Status == subtypes.StatusDraft && to == subtypes.StatusSubmitted:
		// Freeze membership: later library edits never touch the snapshot.
		s.SnapshotIDs = make([]common.ID, len(s.MoleculeIDs))
		copy(s.SnapshotIDs, s.MoleculeIDs)
	case s.Status == subtypes.StatusApproved && to == subtypes.StatusInProgress:
		if s.Price == nil || s.TurnaroundDays == nil {
			return errors.InvalidState("execution requires the review quote to be recorded")
		}
	}

	from := s.Status
	at := now.UTC()
	s.Status = to
	if s.StatusTimes == nil {
		s.StatusTimes = map[subtypes.Status]time.Time{}
	}
	s.StatusTimes[to] = at
	s.UpdatedAt = at

	s.events = append(s.events, TransitionedEvent{
		SubmissionID: s.ID,
		From:         from,
		To:           to,
		At:           at,
	})
	return nil
}

// InSnapshot reports whether the molecule belongs to the frozen membership.
func (s *Submission) InSnapshot(moleculeID common.ID) bool {
	for _, id := range s.SnapshotIDs {
		if id == moleculeID {
			return true
		}
	}
	return false
}

// AttachResultSet links the open result set.  Allowed only while the
// submission is executing or already receiving results.
func (s *Submission) AttachResultSet(resultSetID common.ID) error {
	switch s.Status {
	case subtypes.StatusInProgress, subtypes.StatusResultsUploaded:
	default:
		return errors.InvalidState("results can only attach to an executing submission")
	}
	s.ResultSetID = resultSetID
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Events returns the unpublished transition events and clears the list.
func (s *Submission) Events() []TransitionedEvent {
	events := s.events
	s.events = nil
	return events
}

// ToDTO converts the aggregate to its transfer shape.
func (s *Submission) ToDTO() subtypes.SubmissionDTO {
	dto := subtypes.SubmissionDTO{
		BaseEntity:    s.BaseEntity,
		CROService:    s.CROService,
		CROID:         s.CROID,
		CreatedBy:     s.CreatedBy,
		Status:        s.Status,
		MoleculeIDs:   s.MoleculeIDs,
		SnapshotIDs:   s.SnapshotIDs,
		Price:         s.Price,
		TurnaroundDay: s.TurnaroundDays,
		ResultSetID:   s.ResultSetID,
	}
	if len(s.StatusTimes) > 0 {
		dto.StatusTimes = make(map[subtypes.Status]time.Time, len(s.StatusTimes))
		for k, v := range s.StatusTimes {
			dto.StatusTimes[k] = v
		}
	}
	return dto
}

// FromDTO reconstructs the aggregate from its transfer shape.
func FromDTO(dto subtypes.SubmissionDTO) *Submission {
	return &Submission{
		BaseEntity:     dto.BaseEntity,
		CROService:     dto.CROService,
		CROID:          dto.CROID,
		CreatedBy:      dto.CreatedBy,
		Status:         dto.Status,
		MoleculeIDs:    dto.MoleculeIDs,
		SnapshotIDs:    dto.SnapshotIDs,
		Price:          dto.Price,
		TurnaroundDays: dto.TurnaroundDay,
		ResultSetID:    dto.ResultSetID,
		StatusTimes:    dto.StatusTimes,
	}
}
