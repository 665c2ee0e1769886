package domain

// PatchsetType describes how a patchset revision relates to its predecessor.
type PatchsetType string

const (
	PatchsetProposal     PatchsetType = "PROPOSAL"
	PatchsetFastForward  PatchsetType = "FAST_FORWARD"
	PatchsetAmend        PatchsetType = "AMEND"
	PatchsetRebase       PatchsetType = "REBASE"
	PatchsetRebaseSquash PatchsetType = "REBASE_SQUASH"
	PatchsetSquash       PatchsetType = "SQUASH"
)

// IsRewrite reports whether the revision rewrote previously pushed commits.
func (t PatchsetType) IsRewrite() bool {
	switch t {
	case PatchsetAmend, PatchsetRebase, PatchsetRebaseSquash, PatchsetSquash:
		return true
	}
	return false
}

// Patchset is one proposed revision line attached to a ticket. Number
// identifies a distinct logical patchset; Rev identifies an update to it.
// Diff statistics are computed once, from the version-control backend,
// when the patchset is uploaded.
type Patchset struct {
	Number     int          `json:"number"`
	Rev        int          `json:"rev"`
	Type       PatchsetType `json:"type"`
	Base       string       `json:"base"`
	Tip        string       `json:"tip"`
	Parent     string       `json:"parent,omitempty"`
	Commits    int          `json:"commits"`
	Added      int          `json:"added"`
	Insertions int          `json:"insertions"`
	Deletions  int          `json:"deletions"`
}

// Supersedes reports whether p replaces other as the current patchset.
func (p Patchset) Supersedes(other Patchset) bool {
	if p.Number != other.Number {
		return p.Number > other.Number
	}
	return p.Rev > other.Rev
}
