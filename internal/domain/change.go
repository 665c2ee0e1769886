package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketField names a mutable ticket field carried by a Change.
type TicketField string

const (
	FieldTitle       TicketField = "title"
	FieldBody        TicketField = "body"
	FieldTopic       TicketField = "topic"
	FieldType        TicketField = "type"
	FieldStatus      TicketField = "status"
	FieldResponsible TicketField = "responsible"
	FieldMilestone   TicketField = "milestone"
	FieldMergeTo     TicketField = "mergeTo"
	FieldMergeSha    TicketField = "mergeSha"
	FieldWatchers    TicketField = "watchers"
	FieldVoters      TicketField = "voters"
	FieldLabels      TicketField = "labels"
)

// privilegedFields may only be set by a privileged change.
var privilegedFields = map[TicketField]bool{
	FieldResponsible: true,
	FieldMilestone:   true,
}

// Privileged reports whether setting the field requires elevated rights.
func (f TicketField) Privileged() bool {
	return privilegedFields[f]
}

// CommentSource tags where a comment originated.
type CommentSource string

const (
	CommentSourceUI    CommentSource = "UI"
	CommentSourceEmail CommentSource = "EMAIL"
)

// Comment is free-form discussion text attached to a change. A later change
// carrying the same comment ID supersedes the text and deleted flag.
type Comment struct {
	ID      string        `json:"id"`
	Text    string        `json:"text"`
	Deleted bool          `json:"deleted,omitempty"`
	Source  CommentSource `json:"source,omitempty"`
	ReplyTo string        `json:"reply_to,omitempty"`
}

// Change is one immutable, authored edit in a ticket's history. It is a
// tagged union: at most one of Comment, Patchset, Review is set, possibly
// together with field edits. Changes are appended, never mutated or deleted.
type Change struct {
	ID       string                 `json:"id"`
	Author   string                 `json:"author"`
	Date     time.Time              `json:"date"`
	Fields   map[TicketField]string `json:"fields,omitempty"`
	Comment  *Comment               `json:"comment,omitempty"`
	Patchset *Patchset              `json:"patchset,omitempty"`
	Review   *Review                `json:"review,omitempty"`
}

// NewChange creates an empty change authored now.
func NewChange(author string) Change {
	return Change{
		ID:     uuid.NewString(),
		Author: author,
		Date:   time.Now().UTC(),
	}
}

// SetField records a field edit on the change.
func (c *Change) SetField(field TicketField, value string) {
	if c.Fields == nil {
		c.Fields = make(map[TicketField]string)
	}
	c.Fields[field] = value
}

// HasField reports whether the change edits the given field.
func (c *Change) HasField(field TicketField) bool {
	_, ok := c.Fields[field]
	return ok
}

// IsStatusChange reports whether the change edits the status field.
func (c *Change) IsStatusChange() bool {
	return c.HasField(FieldStatus)
}

// IsMerge reports whether the change records an executed merge. A merge
// change carries both the status edit and the merged commit id.
func (c *Change) IsMerge() bool {
	return c.HasField(FieldStatus) && c.HasField(FieldMergeSha)
}

// HasComment reports whether the change carries a live comment.
func (c *Change) HasComment() bool {
	return c.Comment != nil && !c.Comment.Deleted
}

// AttachComment adds a new comment to the change.
func (c *Change) AttachComment(text string, source CommentSource) *Comment {
	c.Comment = &Comment{
		ID:     uuid.NewString(),
		Text:   strings.TrimSpace(text),
		Source: source,
	}
	return c.Comment
}

// Watch registers usernames as watchers.
func (c *Change) Watch(usernames ...string) { c.plusList(FieldWatchers, usernames...) }

// Unwatch removes usernames from the watcher set.
func (c *Change) Unwatch(usernames ...string) { c.minusList(FieldWatchers, usernames...) }

// Vote registers usernames as voters.
func (c *Change) Vote(usernames ...string) { c.plusList(FieldVoters, usernames...) }

// Unvote removes usernames from the voter set.
func (c *Change) Unvote(usernames ...string) { c.minusList(FieldVoters, usernames...) }

// Label adds labels to the ticket.
func (c *Change) Label(labels ...string) { c.plusList(FieldLabels, labels...) }

// Unlabel removes labels from the ticket.
func (c *Change) Unlabel(labels ...string) { c.minusList(FieldLabels, labels...) }

// Set-valued fields are stored as comma-joined deltas: "+name" adds,
// "-name" removes. The projector folds the deltas in append order.
func (c *Change) plusList(field TicketField, items ...string) { c.modList(field, "+", items) }

func (c *Change) minusList(field TicketField, items ...string) { c.modList(field, "-", items) }

func (c *Change) modList(field TicketField, prefix string, items []string) {
	deltas := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		deltas = append(deltas, prefix+item)
	}
	if len(deltas) == 0 {
		return
	}
	if existing, ok := c.Fields[field]; ok && existing != "" {
		deltas = append([]string{existing}, deltas...)
	}
	c.SetField(field, strings.Join(deltas, ","))
}

func foldSetDeltas(changes []Change, field TicketField) []string {
	set := make(map[string]struct{})
	order := make([]string, 0)
	for _, change := range changes {
		values, ok := change.Fields[field]
		if !ok {
			continue
		}
		for _, value := range strings.Split(values, ",") {
			if value == "" {
				continue
			}
			switch value[0] {
			case '+':
				name := value[1:]
				if _, exists := set[name]; !exists {
					set[name] = struct{}{}
					order = append(order, name)
				}
			case '-':
				delete(set, value[1:])
			default:
				if _, exists := set[value]; !exists {
					set[value] = struct{}{}
					order = append(order, value)
				}
			}
		}
	}
	// order can carry a name twice when it was removed and re-added;
	// emit each member once, at its first-seen position.
	out := make([]string, 0, len(set))
	emitted := make(map[string]struct{}, len(set))
	for _, name := range order {
		if _, exists := set[name]; !exists {
			continue
		}
		if _, dup := emitted[name]; dup {
			continue
		}
		emitted[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
