package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patchsetChange(author string, number, rev int, tip string) Change {
	change := NewChange(author)
	change.Patchset = &Patchset{
		Number: number,
		Rev:    rev,
		Type:   PatchsetProposal,
		Base:   "base0",
		Tip:    tip,
	}
	return change
}

func TestCurrentPatchset_HighestPairWins(t *testing.T) {
	ticket, err := BuildTicket("demo.git", 1, []Change{
		createChange("alice", "proposal", TypeProposal),
		patchsetChange("alice", 1, 1, "tip11"),
		patchsetChange("alice", 1, 2, "tip12"),
		patchsetChange("alice", 2, 1, "tip21"),
	})
	require.NoError(t, err)

	current := ticket.CurrentPatchset()
	require.NotNil(t, current)
	assert.Equal(t, 2, current.Number)
	assert.Equal(t, 1, current.Rev)
	assert.Equal(t, "tip21", current.Tip)

	assert.Len(t, ticket.Patchsets(), 3)
	assert.Len(t, ticket.RevisionsOf(1), 2)
	assert.Len(t, ticket.RevisionsOf(2), 1)
}

func TestCurrentPatchset_NoneUploaded(t *testing.T) {
	ticket, err := BuildTicket("demo.git", 1, []Change{
		createChange("alice", "proposal", TypeProposal),
	})
	require.NoError(t, err)
	assert.Nil(t, ticket.CurrentPatchset())
}

func TestCurrentPatchset_ReturnsCopy(t *testing.T) {
	ticket, err := BuildTicket("demo.git", 1, []Change{
		createChange("alice", "proposal", TypeProposal),
		patchsetChange("alice", 1, 1, "tip11"),
	})
	require.NoError(t, err)

	current := ticket.CurrentPatchset()
	current.Tip = "mutated"
	assert.Equal(t, "tip11", ticket.CurrentPatchset().Tip)
}

func TestApplyChange_PatchsetOnClosedTicketRejected(t *testing.T) {
	ticket, err := BuildTicket("demo.git", 1, []Change{
		createChange("alice", "proposal", TypeProposal),
		statusChange("alice", TicketStatusOpen),
		statusChange("alice", TicketStatusDeclined),
	})
	require.NoError(t, err)

	err = ticket.ApplyChange(patchsetChange("alice", 1, 1, "tip11"))
	assert.ErrorIs(t, err, ErrTicketClosed)
}

func TestApplyChange_RegressingPatchsetRejected(t *testing.T) {
	ticket, err := BuildTicket("demo.git", 1, []Change{
		createChange("alice", "proposal", TypeProposal),
		patchsetChange("alice", 2, 2, "tip22"),
	})
	require.NoError(t, err)

	// same (number, rev)
	err = ticket.ApplyChange(patchsetChange("alice", 2, 2, "dup"))
	assert.ErrorIs(t, err, ErrDuplicatePatchset)

	// rev moving backwards
	err = ticket.ApplyChange(patchsetChange("alice", 2, 1, "old"))
	assert.ErrorIs(t, err, ErrDuplicatePatchset)

	// number moving backwards is a regression, not a duplicate
	err = ticket.ApplyChange(patchsetChange("alice", 1, 3, "older"))
	assert.ErrorIs(t, err, ErrPatchsetRegression)
	assert.NotErrorIs(t, err, ErrDuplicatePatchset)
}

func TestPatchsetSupersedes(t *testing.T) {
	assert.True(t, Patchset{Number: 2, Rev: 1}.Supersedes(Patchset{Number: 1, Rev: 9}))
	assert.True(t, Patchset{Number: 1, Rev: 2}.Supersedes(Patchset{Number: 1, Rev: 1}))
	assert.False(t, Patchset{Number: 1, Rev: 1}.Supersedes(Patchset{Number: 1, Rev: 1}))
}

func TestPatchsetTypeIsRewrite(t *testing.T) {
	assert.True(t, PatchsetRebase.IsRewrite())
	assert.True(t, PatchsetAmend.IsRewrite())
	assert.False(t, PatchsetFastForward.IsRewrite())
	assert.False(t, PatchsetProposal.IsRewrite())
}
