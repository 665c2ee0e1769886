package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/events"
	"github.com/spec-kit/forge-tickets/internal/observability"
	"github.com/spec-kit/forge-tickets/internal/vcs"
)

func newMergeFixture() (*fixture, *MergeService) {
	f := newFixture()
	merges := NewMergeService(MergeDependencies{
		ChangeLog:  f.store,
		Cache:      noopCache{},
		Indexer:    f.indexer,
		Dispatcher: events.NewInMemoryDispatcher(),
		Probe:      f.probe,
		Metrics:    observability.NewMetrics(),
	})
	return f, merges
}

// openProposal creates an open proposal ticket carrying one patchset.
func openProposal(t *testing.T, f *fixture) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type:    domain.TypeProposal,
		Title:   "a proposal",
		MergeTo: "main",
	})
	require.NoError(t, err)
	_, err = f.tickets.EditFields(ctx, "demo.git", ticket.Number, "alice",
		FieldEditInput{Status: statusPtr(domain.TicketStatusOpen)}, false)
	require.NoError(t, err)
	updated, err := f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Base: "base0", Tip: "tip11",
	})
	require.NoError(t, err)
	return updated
}

func TestMerge_CleanMergeClosesTicket(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	outcome, err := merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeMergeable, outcome)

	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "tip11", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeMerged, result.Outcome)
	assert.Equal(t, "merged-sha", result.MergeSha)
	assert.False(t, result.Cancelled)

	merged, err := f.tickets.LoadFresh(ctx, "demo.git", ticket.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusMerged, merged.Status)
	assert.Equal(t, "merged-sha", merged.MergeSha)
	assert.True(t, merged.IsMerged())
	// the merge change is attributed to the merger, who becomes responsible
	assert.Equal(t, "maintainer", merged.Responsible)
}

func TestMerge_VetoBlocks(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	_, err := f.tickets.AddReview(ctx, "demo.git", ticket.Number, "carol", domain.ScoreVetoed)
	require.NoError(t, err)

	outcome, err := merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeVetoed, outcome)

	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "tip11", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeVetoed, result.Outcome)
	assert.Zero(t, f.probe.mergeCount())

	// a veto from one reviewer holds even against approvals from others
	_, err = f.tickets.AddReview(ctx, "demo.git", ticket.Number, "bob", domain.ScoreApproved)
	require.NoError(t, err)
	outcome, err = merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeVetoed, outcome)
}

func TestMerge_RequireApprovalPolicy(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)
	policy := domain.ReviewPolicy{RequireApproval: true}

	outcome, err := merges.Evaluate(ctx, "demo.git", ticket.Number, policy)
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeNotApproved, outcome)

	_, err = f.tickets.AddReview(ctx, "demo.git", ticket.Number, "bob", domain.ScoreApproved)
	require.NoError(t, err)
	outcome, err = merges.Evaluate(ctx, "demo.git", ticket.Number, policy)
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeMergeable, outcome)
}

func TestMerge_ConflictAndBranchOutcomes(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	f.probe.canMerge = vcs.MergeStatusConflicted
	outcome, err := merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeConflicted, outcome)

	f.probe.canMerge = vcs.MergeStatusAlreadyMerged
	outcome, err = merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeAlreadyMerged, outcome)

	f.probe.canMerge = vcs.MergeStatusMissingBranch
	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "tip11", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeMissingIntegrationBranch, result.Outcome)
	assert.Zero(t, f.probe.mergeCount())
}

func TestMerge_StalePatchset(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	// a newer revision lands between evaluation and execution
	_, err := f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Type: domain.PatchsetFastForward, Base: "base0", Tip: "tip12",
	})
	require.NoError(t, err)

	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "tip11", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeStalePatchset, result.Outcome)
	assert.Zero(t, f.probe.mergeCount())
}

func TestMerge_TicketNotOpen(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	_, err := f.tickets.EditFields(ctx, "demo.git", ticket.Number, "alice",
		FieldEditInput{Status: statusPtr(domain.TicketStatusDeclined)}, false)
	require.NoError(t, err)

	outcome, err := merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeTicketClosed, outcome)
}

func TestMerge_NoPatchset(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type: domain.TypeProposal, Title: "no patchset yet", MergeTo: "main",
	})
	require.NoError(t, err)

	outcome, err := merges.Evaluate(ctx, "demo.git", ticket.Number, domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeNoPatchset, outcome)

	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "whatever", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeNoPatchset, result.Outcome)
}

func TestMerge_BackendFailureDoesNotCloseTicket(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	f.probe.mergeErr = errors.New("update-ref failed: branch advanced during merge")
	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "tip11", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeFailed, result.Outcome)
	assert.NotEmpty(t, result.Reason)

	fresh, err := f.tickets.LoadFresh(ctx, "demo.git", ticket.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, fresh.Status)
	assert.Empty(t, fresh.MergeSha)
}

func TestMerge_ExecutionConflictReported(t *testing.T) {
	f, merges := newMergeFixture()
	ctx := context.Background()
	ticket := openProposal(t, f)

	f.probe.mergeErr = vcs.ErrConflict
	result, err := merges.Merge(ctx, "demo.git", ticket.Number, "tip11", "maintainer", domain.ReviewPolicy{})
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeFailed, result.Outcome)

	fresh, err := f.tickets.LoadFresh(ctx, "demo.git", ticket.Number)
	require.NoError(t, err)
	assert.True(t, fresh.IsOpen())
}
