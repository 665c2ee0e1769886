package vcs

import (
	"context"
	"errors"
)

// MergeStatus is the backend's merge-ability determination for a patchset
// tip against an integration branch.
type MergeStatus string

const (
	MergeStatusMergeable     MergeStatus = "MERGEABLE"
	MergeStatusAlreadyMerged MergeStatus = "ALREADY_MERGED"
	MergeStatusMissingBranch MergeStatus = "MISSING_INTEGRATION_BRANCH"
	MergeStatusConflicted    MergeStatus = "CONFLICTED"
)

// ErrConflict is returned by Merge when the backend detects a conflict at
// execution time.
var ErrConflict = errors.New("merge conflict")

// DiffStat summarizes the commit-range diff of a patchset.
type DiffStat struct {
	Commits    int
	Insertions int
	Deletions  int
}

// Probe is the narrow version-control contract the ticket core consumes.
// Implementations must honor context deadlines; none of these calls may
// retry indefinitely.
type Probe interface {
	// DiffStat computes the commit and line statistics for base..tip.
	DiffStat(ctx context.Context, repository, base, tip string) (DiffStat, error)

	// CanMerge reports whether tip can be merged into targetBranch.
	CanMerge(ctx context.Context, repository, tip, targetBranch string) (MergeStatus, error)

	// Merge merges tip into targetBranch and returns the merged commit id.
	// Returns ErrConflict when the merge cannot be completed cleanly.
	Merge(ctx context.Context, repository, tip, targetBranch, message string) (string, error)
}
