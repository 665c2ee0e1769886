package events

import (
	"time"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventStatusChanged    EventType = "ticket_status_changed"
	EventFieldsChanged    EventType = "ticket_fields_changed"
	EventCommentAdded     EventType = "ticket_comment_added"
	EventPatchsetUploaded EventType = "ticket_patchset_uploaded"
	EventReviewAdded      EventType = "ticket_review_added"
	EventTicketMerged     EventType = "ticket_merged"
	EventMilestoneRemoved EventType = "milestone_removed"
)

// Event is a domain event emitted after a Change was appended. Ticket
// carries the freshly projected snapshot so subscribers never re-read the
// log themselves.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Repository string         `json:"repository"`
	Number     int64          `json:"number"`
	Actor      string         `json:"actor"`
	Timestamp  time.Time      `json:"timestamp"`
	Ticket     *domain.Ticket `json:"-"`
	Payload    interface{}    `json:"payload,omitempty"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// FieldsChangedPayload payload.
type FieldsChangedPayload struct {
	Fields map[domain.TicketField]string `json:"fields"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID string               `json:"comment_id"`
	Source    domain.CommentSource `json:"source"`
	Preview   string               `json:"preview"`
}

// PatchsetUploadedPayload payload.
type PatchsetUploadedPayload struct {
	Patchset domain.Patchset `json:"patchset"`
}

// ReviewAddedPayload payload.
type ReviewAddedPayload struct {
	Review domain.Review `json:"review"`
}

// TicketMergedPayload payload.
type TicketMergedPayload struct {
	MergeSha string `json:"merge_sha"`
	MergeTo  string `json:"merge_to"`
}

// MilestoneRemovedPayload payload.
type MilestoneRemovedPayload struct {
	Milestone string `json:"milestone"`
}
