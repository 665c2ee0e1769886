package domain

import (
	"time"
)

// Ticket is the aggregate snapshot of one tracked unit of work. It is a
// derived, disposable view rebuilt by folding the ticket's ChangeLog; it is
// never persisted on its own (the snapshot cache is owned by the service).
type Ticket struct {
	Repository  string       `json:"repository"`
	Number      int64        `json:"number"`
	CreatedAt   time.Time    `json:"created_at"`
	CreatedBy   string       `json:"created_by"`
	UpdatedAt   time.Time    `json:"updated_at,omitempty"`
	UpdatedBy   string       `json:"updated_by,omitempty"`
	Title       string       `json:"title"`
	Body        string       `json:"body,omitempty"`
	Topic       string       `json:"topic,omitempty"`
	Type        TicketType   `json:"type"`
	Status      TicketStatus `json:"status"`
	Responsible string       `json:"responsible,omitempty"`
	Milestone   string       `json:"milestone,omitempty"`
	MergeTo     string       `json:"merge_to,omitempty"`
	MergeSha    string       `json:"merge_sha,omitempty"`
	Changes     []Change     `json:"changes"`
}

// BuildTicket folds a ChangeLog, oldest to newest, into the effective
// ticket. Projection is pure and deterministic: replaying the same log
// yields an identical snapshot. Comment edits are collapsed so a later
// change carrying an existing comment id supersedes the original.
func BuildTicket(repository string, number int64, changes []Change) (*Ticket, error) {
	ticket := &Ticket{
		Repository: repository,
		Number:     number,
		Changes:    make([]Change, 0, len(changes)),
	}
	for _, change := range collapseCommentEdits(changes) {
		if err := ticket.applyChange(change); err != nil {
			return nil, err
		}
	}
	return ticket, nil
}

// ApplyChange validates the change against the current snapshot and folds
// it in. The ChangeLog is only appended to after this succeeds, so an
// invalid transition is rejected before it is ever recorded.
func (t *Ticket) ApplyChange(change Change) error {
	return t.applyChange(change)
}

func (t *Ticket) applyChange(change Change) error {
	first := len(t.Changes) == 0
	if first {
		t.CreatedAt = change.Date
		t.CreatedBy = change.Author
		t.Status = TicketStatusNew
	} else {
		t.UpdatedAt = change.Date
		t.UpdatedBy = change.Author
	}

	if change.Patchset != nil {
		if t.Status.IsClosed() {
			return ErrTicketClosed
		}
		if err := t.checkPatchsetOrder(*change.Patchset); err != nil {
			return err
		}
	}

	if change.IsMerge() {
		// a merge record closes the ticket directly, outside the
		// explicit status workflow
		t.Status = TicketStatusMerged
		t.MergeSha = change.Fields[FieldMergeSha]
		if t.Responsible == "" {
			t.Responsible = change.Author
		}
	} else if status, ok := change.Fields[FieldStatus]; ok && !first {
		next := TicketStatus(status)
		if !ValidTransition(t.Type, t.Status, next) {
			return &InvalidTransitionError{Type: t.Type, From: t.Status, To: next}
		}
		t.Status = next
	}

	for field, value := range change.Fields {
		switch field {
		case FieldTitle:
			t.Title = value
		case FieldBody:
			t.Body = value
		case FieldTopic:
			t.Topic = value
		case FieldType:
			t.Type = TicketType(value)
		case FieldResponsible:
			t.Responsible = value
		case FieldMilestone:
			t.Milestone = value
		case FieldMergeTo:
			t.MergeTo = value
		}
	}

	t.Changes = append(t.Changes, change)
	return nil
}

func (t *Ticket) checkPatchsetOrder(ps Patchset) error {
	for _, existing := range t.Patchsets() {
		if existing.Number == ps.Number && existing.Rev >= ps.Rev {
			return ErrDuplicatePatchset
		}
		if existing.Number > ps.Number {
			return ErrPatchsetRegression
		}
	}
	return nil
}

func collapseCommentEdits(changes []Change) []Change {
	effective := make([]Change, 0, len(changes))
	byComment := make(map[string]int)
	for _, change := range changes {
		if change.Comment == nil {
			effective = append(effective, change)
			continue
		}
		if idx, ok := byComment[change.Comment.ID]; ok {
			original := effective[idx]
			edited := *original.Comment
			edited.Text = change.Comment.Text
			edited.Deleted = change.Comment.Deleted
			original.Comment = &edited
			effective[idx] = original
			continue
		}
		byComment[change.Comment.ID] = len(effective)
		effective = append(effective, change)
	}
	return effective
}

// IsOpen reports whether the ticket is still in a workable state.
func (t *Ticket) IsOpen() bool { return !t.Status.IsClosed() }

// IsClosed reports whether the ticket reached a terminal state.
func (t *Ticket) IsClosed() bool { return t.Status.IsClosed() }

// IsMerged reports whether the ticket was closed by an executed merge.
func (t *Ticket) IsMerged() bool { return t.Status == TicketStatusMerged && t.MergeSha != "" }

// Patchsets returns every uploaded patchset revision in append order.
func (t *Ticket) Patchsets() []Patchset {
	out := make([]Patchset, 0)
	for _, change := range t.Changes {
		if change.Patchset != nil {
			out = append(out, *change.Patchset)
		}
	}
	return out
}

// CurrentPatchset returns the patchset with the highest (number, rev)
// pair, or nil when no patchset was uploaded.
func (t *Ticket) CurrentPatchset() *Patchset {
	var current *Patchset
	for _, change := range t.Changes {
		if change.Patchset == nil {
			continue
		}
		if current == nil || change.Patchset.Supersedes(*current) {
			current = change.Patchset
		}
	}
	if current == nil {
		return nil
	}
	ps := *current
	return &ps
}

// RevisionsOf returns all revisions sharing the patchset number, ordered
// by rev.
func (t *Ticket) RevisionsOf(number int) []Patchset {
	out := make([]Patchset, 0)
	for _, ps := range t.Patchsets() {
		if ps.Number == number {
			out = append(out, ps)
		}
	}
	return out
}

// ActiveReviews returns the effective review per reviewer for the given
// patchset number. A reviewer's newer review supersedes their earlier one;
// reviews on other patchset numbers are ignored.
func (t *Ticket) ActiveReviews(number int) []Review {
	latest := make(map[string]Review)
	order := make([]string, 0)
	for _, change := range t.Changes {
		if change.Review == nil || change.Review.Patchset != number {
			continue
		}
		if _, seen := latest[change.Review.Reviewer]; !seen {
			order = append(order, change.Review.Reviewer)
		}
		latest[change.Review.Reviewer] = *change.Review
	}
	out := make([]Review, 0, len(latest))
	for _, reviewer := range order {
		out = append(out, latest[reviewer])
	}
	return out
}

// Comments returns the live discussion entries in append order.
func (t *Ticket) Comments() []Change {
	out := make([]Change, 0)
	for _, change := range t.Changes {
		if change.HasComment() {
			out = append(out, change)
		}
	}
	return out
}

// Watchers returns the usernames watching the ticket.
func (t *Ticket) Watchers() []string { return foldSetDeltas(t.Changes, FieldWatchers) }

// Voters returns the usernames that voted for the ticket.
func (t *Ticket) Voters() []string { return foldSetDeltas(t.Changes, FieldVoters) }

// Labels returns the labels attached to the ticket.
func (t *Ticket) Labels() []string { return foldSetDeltas(t.Changes, FieldLabels) }

// Participants returns everyone who authored a change, plus the
// responsible user.
func (t *Ticket) Participants() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, change := range t.Changes {
		if _, ok := seen[change.Author]; ok {
			continue
		}
		seen[change.Author] = struct{}{}
		out = append(out, change.Author)
	}
	if t.Responsible != "" {
		if _, ok := seen[t.Responsible]; !ok {
			out = append(out, t.Responsible)
		}
	}
	return out
}
