// Package submission provides the domain model for CRO submissions: the
// lifecycle state machine, the Submission aggregate, and its repository
// contract.
package submission

import (
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

// legalEdges is the authoritative transition table.  An edge absent from the
// table is illegal regardless of actor.
var legalEdges = map[subtypes.Edge]struct{}{
	{From: subtypes.StatusDraft, To: subtypes.StatusSubmitted}:                 {},
	{From: subtypes.StatusSubmitted, To: subtypes.StatusPendingReview}:         {},
	{From: subtypes.StatusPendingReview, To: subtypes.StatusApproved}:          {},
	{From: subtypes.StatusPendingReview, To: subtypes.StatusRejected}:          {},
	{From: subtypes.StatusApproved, To: subtypes.StatusInProgress}:             {},
	{From: subtypes.StatusInProgress, To: subtypes.StatusResultsUploaded}:      {},
	{From: subtypes.StatusResultsUploaded, To: subtypes.StatusCompleted}:       {},
	{From: subtypes.StatusDraft, To: subtypes.StatusCancelled}:                 {},
	{From: subtypes.StatusSubmitted, To: subtypes.StatusCancelled}:             {},
	{From: subtypes.StatusPendingReview, To: subtypes.StatusCancelled}:         {},
	{From: subtypes.StatusApproved, To: subtypes.StatusCancelled}:              {},
}

// edgeRoles maps each legal edge to the actor roles permitted to perform it.
// Cancellation belongs to the originating pharma side and stops being
// available once execution begins; review outcomes belong to the CRO side.
// The system role covers transitions driven by the platform itself, such as
// the automatic advance when results arrive.
var edgeRoles = map[subtypes.Edge][]common.ActorRole{
	{From: subtypes.StatusDraft, To: subtypes.StatusSubmitted}:            {common.RolePharma},
	{From: subtypes.StatusSubmitted, To: subtypes.StatusPendingReview}:    {common.RoleCRO, common.RoleSystem},
	{From: subtypes.StatusPendingReview, To: subtypes.StatusApproved}:     {common.RoleCRO},
	{From: subtypes.StatusPendingReview, To: subtypes.StatusRejected}:     {common.RoleCRO},
	{From: subtypes.StatusApproved, To: subtypes.StatusInProgress}:        {common.RoleCRO},
	{From: subtypes.StatusInProgress, To: subtypes.StatusResultsUploaded}: {common.RoleCRO, common.RoleSystem},
	{From: subtypes.StatusResultsUploaded, To: subtypes.StatusCompleted}:  {common.RolePharma},
	{From: subtypes.StatusDraft, To: subtypes.StatusCancelled}:            {common.RolePharma},
	{From: subtypes.StatusSubmitted, To: subtypes.StatusCancelled}:        {common.RolePharma},
	{From: subtypes.StatusPendingReview, To: subtypes.StatusCancelled}:    {common.RolePharma},
	{From: subtypes.StatusApproved, To: subtypes.StatusCancelled}:         {common.RolePharma},
}

// IsLegalEdge reports whether the transition exists in the lifecycle graph.
func IsLegalEdge(from, to subtypes.Status) bool {
	_, ok := legalEdges[subtypes.Edge{From: from, To: to}]
	return ok
}

// CanPerform is the single authorization predicate for submission
// transitions.  It answers only "may this role drive this edge"; edge
// legality is checked separately.
func CanPerform(role common.ActorRole, edge subtypes.Edge) bool {
	for _, allowed := range edgeRoles[edge] {
		if allowed == role {
			return true
		}
	}
	return false
}

// ValidateTransition checks edge legality and actor authorization for one
// transition attempt.  Illegal edges yield InvalidTransition; legal edges
// driven by the wrong role yield RoleNotPermitted.
func ValidateTransition(from, to subtypes.Status, role common.ActorRole) error {
	if !IsLegalEdge(from, to) {
		return errors.InvalidTransition(string(from), string(to))
	}
	if !CanPerform(role, subtypes.Edge{From: from, To: to}) {
		return errors.Newf(errors.ErrCodeRoleNotPermitted,
			"role %s may not move submission from %s to %s", role, from, to)
	}
	return nil
}

// NextStatuses returns the statuses reachable from the given status,
// regardless of role.  Used by the read surface to offer available actions.
func NextStatuses(from subtypes.Status) []subtypes.Status {
	var out []subtypes.Status
	for edge := range legalEdges {
		if edge.From == from {
			out = append(out, edge.To)
		}
	}
	return out
}
