package domain

// ReviewScore is a reviewer's scored verdict. A score below -1 blocks a
// merge unconditionally; a score above +1 counts as an approval.
type ReviewScore int

const (
	ScoreVetoed           ReviewScore = -2
	ScoreNeedsImprovement ReviewScore = -1
	ScoreNotReviewed      ReviewScore = 0
	ScoreLooksGood        ReviewScore = 1
	ScoreApproved         ReviewScore = 2
)

// Blocks reports whether the score unconditionally blocks a merge.
func (s ReviewScore) Blocks() bool {
	return s < ScoreNeedsImprovement
}

// Approves reports whether the score counts as an approval.
func (s ReviewScore) Approves() bool {
	return s > ScoreLooksGood
}

func (s ReviewScore) String() string {
	switch s {
	case ScoreVetoed:
		return "vetoed"
	case ScoreNeedsImprovement:
		return "needs_improvement"
	case ScoreLooksGood:
		return "looks_good"
	case ScoreApproved:
		return "approved"
	default:
		return "not_reviewed"
	}
}

// ParseScore maps a score name to its value.
func ParseScore(name string) (ReviewScore, bool) {
	switch name {
	case "vetoed":
		return ScoreVetoed, true
	case "needs_improvement":
		return ScoreNeedsImprovement, true
	case "not_reviewed":
		return ScoreNotReviewed, true
	case "looks_good":
		return ScoreLooksGood, true
	case "approved":
		return ScoreApproved, true
	}
	return ScoreNotReviewed, false
}

// Review is one reviewer's verdict on one patchset revision. A reviewer has
// at most one active review per patchset number; a newer review for the same
// number supersedes the reviewer's previous one.
type Review struct {
	Patchset int         `json:"patchset"`
	Rev      int         `json:"rev"`
	Reviewer string      `json:"reviewer"`
	Score    ReviewScore `json:"score"`
}

// Verdict is the aggregated review outcome for a patchset.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictPending  Verdict = "PENDING"
	VerdictVetoed   Verdict = "VETOED"
)

// ReviewPolicy carries repository-level review configuration. It is passed
// explicitly so the same code is testable with both policies.
type ReviewPolicy struct {
	RequireApproval bool
}

// ReviewVerdict folds the active reviews for the current patchset into an
// approval/veto verdict. Reviews on older patchset numbers never count; a
// veto is binding regardless of other scores. Without RequireApproval the
// absence of a veto is sufficient for approval.
func ReviewVerdict(t *Ticket, policy ReviewPolicy) Verdict {
	current := t.CurrentPatchset()
	if current == nil {
		if policy.RequireApproval {
			return VerdictPending
		}
		return VerdictApproved
	}
	approved := false
	for _, review := range t.ActiveReviews(current.Number) {
		if review.Score.Blocks() {
			return VerdictVetoed
		}
		if review.Score.Approves() {
			approved = true
		}
	}
	if !policy.RequireApproval || approved {
		return VerdictApproved
	}
	return VerdictPending
}
