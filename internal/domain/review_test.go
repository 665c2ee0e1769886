package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewChange(reviewer string, number, rev int, score ReviewScore) Change {
	change := NewChange(reviewer)
	change.Review = &Review{Patchset: number, Rev: rev, Reviewer: reviewer, Score: score}
	return change
}

func proposalWithPatchset(t *testing.T, extra ...Change) *Ticket {
	t.Helper()
	changes := []Change{
		createChange("alice", "proposal", TypeProposal),
		statusChange("alice", TicketStatusOpen),
		patchsetChange("alice", 1, 1, "tip11"),
	}
	changes = append(changes, extra...)
	ticket, err := BuildTicket("demo.git", 1, changes)
	require.NoError(t, err)
	return ticket
}

func TestActiveReviews_LatestPerReviewerWins(t *testing.T) {
	ticket := proposalWithPatchset(t,
		reviewChange("bob", 1, 1, ScoreNeedsImprovement),
		reviewChange("carol", 1, 1, ScoreLooksGood),
		reviewChange("bob", 1, 1, ScoreApproved),
	)

	reviews := ticket.ActiveReviews(1)
	require.Len(t, reviews, 2)
	assert.Equal(t, "bob", reviews[0].Reviewer)
	assert.Equal(t, ScoreApproved, reviews[0].Score)
	assert.Equal(t, "carol", reviews[1].Reviewer)
}

func TestActiveReviews_OtherPatchsetNumbersIgnored(t *testing.T) {
	ticket := proposalWithPatchset(t,
		reviewChange("bob", 1, 1, ScoreApproved),
		patchsetChange("alice", 2, 1, "tip21"),
		reviewChange("carol", 2, 1, ScoreLooksGood),
	)

	reviews := ticket.ActiveReviews(2)
	require.Len(t, reviews, 1)
	assert.Equal(t, "carol", reviews[0].Reviewer)
}

func TestReviewVerdict_VetoDominates(t *testing.T) {
	ticket := proposalWithPatchset(t,
		reviewChange("bob", 1, 1, ScoreApproved),
		reviewChange("carol", 1, 1, ScoreVetoed),
	)

	assert.Equal(t, VerdictVetoed, ReviewVerdict(ticket, ReviewPolicy{}))
	assert.Equal(t, VerdictVetoed, ReviewVerdict(ticket, ReviewPolicy{RequireApproval: true}))
}

func TestReviewVerdict_RequireApproval(t *testing.T) {
	unreviewed := proposalWithPatchset(t)
	assert.Equal(t, VerdictApproved, ReviewVerdict(unreviewed, ReviewPolicy{}))
	assert.Equal(t, VerdictPending, ReviewVerdict(unreviewed, ReviewPolicy{RequireApproval: true}))

	looksGood := proposalWithPatchset(t, reviewChange("bob", 1, 1, ScoreLooksGood))
	// +1 is not an approval
	assert.Equal(t, VerdictPending, ReviewVerdict(looksGood, ReviewPolicy{RequireApproval: true}))

	approved := proposalWithPatchset(t, reviewChange("bob", 1, 1, ScoreApproved))
	assert.Equal(t, VerdictApproved, ReviewVerdict(approved, ReviewPolicy{RequireApproval: true}))
}

func TestReviewVerdict_NewPatchsetResetsReviews(t *testing.T) {
	ticket := proposalWithPatchset(t,
		reviewChange("bob", 1, 1, ScoreApproved),
		patchsetChange("alice", 2, 1, "tip21"),
	)

	// the approval was for patchset 1; patchset 2 is unreviewed
	assert.Equal(t, VerdictPending, ReviewVerdict(ticket, ReviewPolicy{RequireApproval: true}))
}

func TestScoreSemantics(t *testing.T) {
	assert.True(t, ScoreVetoed.Blocks())
	assert.False(t, ScoreNeedsImprovement.Blocks())
	assert.True(t, ScoreApproved.Approves())
	assert.False(t, ScoreLooksGood.Approves())

	score, ok := ParseScore("vetoed")
	require.True(t, ok)
	assert.Equal(t, ScoreVetoed, score)
	_, ok = ParseScore("nonsense")
	assert.False(t, ok)
}
