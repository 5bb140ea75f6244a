package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	subtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/submission"
)

func TestLegalEdges(t *testing.T) {
	legal := []subtypes.Edge{
		{From: subtypes.StatusDraft, To: subtypes.StatusSubmitted},
		{From: subtypes.StatusSubmitted, To: subtypes.StatusPendingReview},
		{From: subtypes.StatusPendingReview, To: subtypes.StatusApproved},
		{From: subtypes.StatusPendingReview, To: subtypes.StatusRejected},
		{From: subtypes.StatusApproved, To: subtypes.StatusInProgress},
		{From: subtypes.StatusInProgress, To: subtypes.StatusResultsUploaded},
		{From: subtypes.StatusResultsUploaded, To: subtypes.StatusCompleted},
		{From: subtypes.StatusDraft, To: subtypes.StatusCancelled},
		{From: subtypes.StatusSubmitted, To: subtypes.StatusCancelled},
		{From: subtypes.StatusPendingReview, To: subtypes.StatusCancelled},
		{From: subtypes.StatusApproved, To: subtypes.StatusCancelled},
	}
	for _, e := range legal {
		assert.True(t, IsLegalEdge(e.From, e.To), "%s -> %s should be legal", e.From, e.To)
	}

	illegal := []subtypes.Edge{
		{From: subtypes.StatusDraft, To: subtypes.StatusInProgress},
		{From: subtypes.StatusDraft, To: subtypes.StatusApproved},
		{From: subtypes.StatusSubmitted, To: subtypes.StatusApproved},
		{From: subtypes.StatusApproved, To: subtypes.StatusPendingReview},
		{From: subtypes.StatusInProgress, To: subtypes.StatusCancelled},
		{From: subtypes.StatusResultsUploaded, To: subtypes.StatusCancelled},
		{From: subtypes.StatusCompleted, To: subtypes.StatusDraft},
		{From: subtypes.StatusRejected, To: subtypes.StatusPendingReview},
		{From: subtypes.StatusCancelled, To: subtypes.StatusDraft},
	}
	for _, e := range illegal {
		assert.False(t, IsLegalEdge(e.From, e.To), "%s -> %s should be illegal", e.From, e.To)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, status := range []subtypes.Status{
		subtypes.StatusCompleted, subtypes.StatusRejected, subtypes.StatusCancelled,
	} {
		require.True(t, status.IsTerminal())
		assert.Empty(t, NextStatuses(status), "terminal status %s must have no exits", status)
	}
}

func TestCanPerform(t *testing.T) {
	approve := subtypes.Edge{From: subtypes.StatusPendingReview, To: subtypes.StatusApproved}
	assert.True(t, CanPerform(common.RoleCRO, approve))
	assert.False(t, CanPerform(common.RolePharma, approve))
	assert.False(t, CanPerform(common.RoleSystem, approve))

	submit := subtypes.Edge{From: subtypes.StatusDraft, To: subtypes.StatusSubmitted}
	assert.True(t, CanPerform(common.RolePharma, submit))
	assert.False(t, CanPerform(common.RoleCRO, submit))

	resultsIn := subtypes.Edge{From: subtypes.StatusInProgress, To: subtypes.StatusResultsUploaded}
	assert.True(t, CanPerform(common.RoleSystem, resultsIn))
	assert.True(t, CanPerform(common.RoleCRO, resultsIn))

	complete := subtypes.Edge{From: subtypes.StatusResultsUploaded, To: subtypes.StatusCompleted}
	assert.True(t, CanPerform(common.RolePharma, complete))
	assert.False(t, CanPerform(common.RoleCRO, complete))

	cancel := subtypes.Edge{From: subtypes.StatusApproved, To: subtypes.StatusCancelled}
	assert.True(t, CanPerform(common.RolePharma, cancel))
	assert.False(t, CanPerform(common.RoleCRO, cancel))
}

func TestValidateTransition(t *testing.T) {
	// Illegal edge beats role check.
	err := ValidateTransition(subtypes.StatusDraft, subtypes.StatusInProgress, common.RoleCRO)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.GetCode(err))

	// Legal edge, wrong role.
	err = ValidateTransition(subtypes.StatusPendingReview, subtypes.StatusApproved, common.RolePharma)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRoleNotPermitted, errors.GetCode(err))

	// Legal edge, right role.
	assert.NoError(t, ValidateTransition(subtypes.StatusPendingReview, subtypes.StatusApproved, common.RoleCRO))
}

func TestNextStatuses(t *testing.T) {
	next := NextStatuses(subtypes.StatusPendingReview)
	assert.ElementsMatch(t, []subtypes.Status{
		subtypes.StatusApproved, subtypes.StatusRejected, subtypes.StatusCancelled,
	}, next)
}
