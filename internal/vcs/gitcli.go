package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// GitProbe implements Probe by shelling out to the git binary against bare
// repositories laid out under a root directory. Merges are executed without
// a working tree: merge-tree produces the merged tree, commit-tree seals it
// and update-ref advances the integration branch with a compare-and-swap on
// the old branch head.
type GitProbe struct {
	root   string
	logger *zap.Logger
}

// NewGitProbe creates a probe for bare repositories under root.
func NewGitProbe(root string, logger *zap.Logger) *GitProbe {
	return &GitProbe{root: root, logger: logger}
}

func (g *GitProbe) repoPath(repository string) string {
	return filepath.Join(g.root, repository)
}

func (g *GitProbe) git(ctx context.Context, repository string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.repoPath(repository)}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), exitErr.ExitCode(), nil
		}
		return "", -1, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), 0, nil
}

func (g *GitProbe) resolve(ctx context.Context, repository, ref string) (string, bool, error) {
	out, code, err := g.git(ctx, repository, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", false, err
	}
	if code != 0 {
		return "", false, nil
	}
	return strings.TrimSpace(out), true, nil
}

// DiffStat computes commit and line statistics for base..tip.
func (g *GitProbe) DiffStat(ctx context.Context, repository, base, tip string) (DiffStat, error) {
	out, code, err := g.git(ctx, repository, "rev-list", "--count", base+".."+tip)
	if err != nil {
		return DiffStat{}, err
	}
	if code != 0 {
		return DiffStat{}, fmt.Errorf("rev-list %s..%s failed in %s", base, tip, repository)
	}
	commits, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return DiffStat{}, fmt.Errorf("parse rev-list count: %w", err)
	}

	stat := DiffStat{Commits: commits}
	out, code, err = g.git(ctx, repository, "diff", "--numstat", base, tip)
	if err != nil {
		return DiffStat{}, err
	}
	if code != 0 {
		return DiffStat{}, fmt.Errorf("diff --numstat failed in %s", repository)
	}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		// binary files report "-" for both columns
		if ins, err := strconv.Atoi(parts[0]); err == nil {
			stat.Insertions += ins
		}
		if del, err := strconv.Atoi(parts[1]); err == nil {
			stat.Deletions += del
		}
	}
	return stat, nil
}

// CanMerge reports whether tip can be merged cleanly into targetBranch.
func (g *GitProbe) CanMerge(ctx context.Context, repository, tip, targetBranch string) (MergeStatus, error) {
	_, ok, err := g.resolve(ctx, repository, "refs/heads/"+targetBranch)
	if err != nil {
		return "", err
	}
	if !ok {
		return MergeStatusMissingBranch, nil
	}

	tipSha, ok, err := g.resolve(ctx, repository, tip)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("unresolvable patchset tip %s in %s", tip, repository)
	}

	_, code, err := g.git(ctx, repository, "merge-base", "--is-ancestor", tipSha, "refs/heads/"+targetBranch)
	if err != nil {
		return "", err
	}
	if code == 0 {
		return MergeStatusAlreadyMerged, nil
	}

	_, code, err = g.git(ctx, repository, "merge-tree", "--write-tree", "refs/heads/"+targetBranch, tipSha)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return MergeStatusConflicted, nil
	}
	return MergeStatusMergeable, nil
}

// Merge merges tip into targetBranch. The branch ref is advanced with a
// compare-and-swap against the head observed at the start, so a concurrent
// push or merge surfaces as an error rather than a lost update.
func (g *GitProbe) Merge(ctx context.Context, repository, tip, targetBranch, message string) (string, error) {
	branchRef := "refs/heads/" + targetBranch
	oldHead, ok, err := g.resolve(ctx, repository, branchRef)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("integration branch %s missing in %s", targetBranch, repository)
	}
	tipSha, ok, err := g.resolve(ctx, repository, tip)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("unresolvable patchset tip %s in %s", tip, repository)
	}

	out, code, err := g.git(ctx, repository, "merge-tree", "--write-tree", oldHead, tipSha)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", ErrConflict
	}
	tree := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])

	out, code, err = g.git(ctx, repository, "commit-tree", tree, "-p", oldHead, "-p", tipSha, "-m", message)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("commit-tree failed in %s", repository)
	}
	mergeSha := strings.TrimSpace(out)

	_, code, err = g.git(ctx, repository, "update-ref", branchRef, mergeSha, oldHead)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("branch %s advanced during merge in %s", targetBranch, repository)
	}

	if g.logger != nil {
		g.logger.Info("merged patchset",
			zap.String("repository", repository),
			zap.String("branch", targetBranch),
			zap.String("tip", tipSha),
			zap.String("merge_sha", mergeSha))
	}
	return mergeSha, nil
}
