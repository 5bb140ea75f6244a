// Package prediction provides the domain model for property-prediction work:
// the Job aggregate grouping molecules for one engine call, its retry policy,
// and the repository contract backing the durable queue.
package prediction

import (
	"fmt"
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// State is the lifecycle state of a prediction job.
type State string

const (
	StateQueued    State = "QUEUED"
	StateInFlight  State = "IN_FLIGHT"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// IsTerminal reports whether the job can change state again.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ─────────────────────────────────────────────────────────────────────────────
// Job Aggregate
// ─────────────────────────────────────────────────────────────────────────────

// Job is one bounded group of molecules submitted together to the external
// prediction engine.  A molecule appears in at most one non-terminal Job at a
// time; the scheduler enforces this when forming new jobs.
type Job struct {
	common.BaseEntity

	MoleculeIDs []common.ID
	Properties  []string
	State       State
	// Attempts counts engine calls started for this job.  It never exceeds
	// the retry ceiling of the policy that drives it.
	Attempts    int
	NextRetryAt time.Time
	LastError   string
}

// NewJob builds a QUEUED job for the given molecules and property list.
// maxBatch bounds the group size.
func NewJob(moleculeIDs []common.ID, properties []string, maxBatch int) (*Job, error) {
	if len(moleculeIDs) == 0 {
		return nil, errors.InvalidParam("prediction job requires at least one molecule")
	}
	if maxBatch > 0 && len(moleculeIDs) > maxBatch {
		return nil, errors.Newf(errors.ErrCodeBatchTooLarge,
			"prediction job holds %d molecules, limit is %d", len(moleculeIDs), maxBatch)
	}
	if len(properties) == 0 {
		return nil, errors.InvalidParam("prediction job requires at least one property")
	}

	now := time.Now().UTC()
	ids := make([]common.ID, len(moleculeIDs))
	copy(ids, moleculeIDs)
	props := make([]string, len(properties))
	copy(props, properties)

	return &Job{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		MoleculeIDs: ids,
		Properties:  props,
		State:       StateQueued,
		NextRetryAt: now,
	}, nil
}

// Due reports whether the job is ready for dispatch at the given instant.
func (j *Job) Due(now time.Time) bool {
	return j.State == StateQueued && !j.NextRetryAt.After(now)
}

// Start moves the job to IN_FLIGHT and counts the attempt.  The policy's
// ceiling guards against dispatching a job that has no attempts left.
func (j *Job) Start(policy RetryPolicy) error {
	if j.State != StateQueued {
		return errors.InvalidState(
			fmt.Sprintf("job %s is %s, only QUEUED jobs start", j.ID, j.State))
	}
	if j.Attempts >= policy.MaxAttempts {
		return errors.InvalidState(
			fmt.Sprintf("job %s has exhausted its %d attempts", j.ID, policy.MaxAttempts))
	}
	j.State = StateInFlight
	j.Attempts++
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Succeed marks the job SUCCEEDED.
func (j *Job) Succeed() error {
	if j.State != StateInFlight {
		return errors.InvalidState(
			fmt.Sprintf("job %s is %s, only IN_FLIGHT jobs succeed", j.ID, j.State))
	}
	j.State = StateSucceeded
	j.LastError = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail records a call failure.  While attempts remain under the ceiling the
// job re-queues with a backoff delay; otherwise it turns FAILED and the error
// stays visible for operators.
func (j *Job) Fail(callErr error, policy RetryPolicy, now time.Time) error {
	if j.State != StateInFlight {
		return errors.InvalidState(
			fmt.Sprintf("job %s is %s, only IN_FLIGHT jobs fail", j.ID, j.State))
	}
	if callErr != nil {
		j.LastError = callErr.Error()
	}
	j.UpdatedAt = now.UTC()

	if j.Attempts >= policy.MaxAttempts {
		j.State = StateFailed
		return nil
	}
	j.State = StateQueued
	j.NextRetryAt = now.Add(policy.Backoff(j.Attempts))
	return nil
}

// Exhausted reports whether the job failed terminally.
func (j *Job) Exhausted() bool { return j.State == StateFailed }
