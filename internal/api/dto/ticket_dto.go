package dto

import (
	"time"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Type    domain.TicketType `json:"type"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Topic   string            `json:"topic"`
	MergeTo string            `json:"merge_to"`
}

// EditTicketRequest carries partial field edits. Absent fields are left
// untouched.
type EditTicketRequest struct {
	Title       *string              `json:"title"`
	Body        *string              `json:"body"`
	Topic       *string              `json:"topic"`
	Type        *domain.TicketType   `json:"type"`
	Status      *domain.TicketStatus `json:"status"`
	Responsible *string              `json:"responsible"`
	Milestone   *string              `json:"milestone"`
	MergeTo     *string              `json:"merge_to"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to"`
}

// LabelsRequest payload.
type LabelsRequest struct {
	Labels []string `json:"labels"`
}

// PatchsetRequest payload.
type PatchsetRequest struct {
	Type   domain.PatchsetType `json:"type"`
	Base   string              `json:"base"`
	Tip    string              `json:"tip"`
	Parent string              `json:"parent"`
}

// ReviewRequest payload. Score is a name like "approved" or "vetoed".
type ReviewRequest struct {
	Score string `json:"score"`
}

// MergeRequest payload. ExpectedTip pins the patchset the caller reviewed.
type MergeRequest struct {
	ExpectedTip string `json:"expected_tip"`
}

// TicketSummary response.
type TicketSummary struct {
	Repository  string              `json:"repository"`
	Number      int64               `json:"number"`
	Type        domain.TicketType   `json:"type"`
	Title       string              `json:"title"`
	Topic       string              `json:"topic,omitempty"`
	Status      domain.TicketStatus `json:"status"`
	Responsible string              `json:"responsible,omitempty"`
	Milestone   string              `json:"milestone,omitempty"`
	Labels      []string            `json:"labels,omitempty"`
	Votes       int                 `json:"votes"`
	CreatedAt   time.Time           `json:"created_at"`
	CreatedBy   string              `json:"created_by"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Body            string            `json:"body"`
	MergeTo         string            `json:"merge_to,omitempty"`
	MergeSha        string            `json:"merge_sha,omitempty"`
	Watchers        []string          `json:"watchers,omitempty"`
	Voters          []string          `json:"voters,omitempty"`
	Participants    []string          `json:"participants,omitempty"`
	Comments        []CommentResponse `json:"comments"`
	Patchsets       []domain.Patchset `json:"patchsets"`
	CurrentPatchset *domain.Patchset  `json:"current_patchset,omitempty"`
	Reviews         []domain.Review   `json:"reviews"`
}

// CommentResponse represents a live (non-deleted) comment.
type CommentResponse struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	ReplyTo string    `json:"reply_to,omitempty"`
	Date    time.Time `json:"date"`
}

// MergeEvaluationResponse reports merge eligibility.
type MergeEvaluationResponse struct {
	Outcome string `json:"outcome"`
}

// MergeResultResponse reports the result of an executed merge.
type MergeResultResponse struct {
	Outcome   string `json:"outcome"`
	MergeSha  string `json:"merge_sha,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}
