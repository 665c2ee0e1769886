package dto

import (
	"time"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// CreateMilestoneRequest payload.
type CreateMilestoneRequest struct {
	Name  string     `json:"name"`
	Color string     `json:"color"`
	Due   *time.Time `json:"due"`
}

// EditMilestoneRequest payload.
type EditMilestoneRequest struct {
	Color string     `json:"color"`
	Due   *time.Time `json:"due"`
}

// RenameMilestoneRequest payload.
type RenameMilestoneRequest struct {
	Name string `json:"name"`
}

// MilestoneResponse response.
type MilestoneResponse struct {
	Repository    string                 `json:"repository"`
	Name          string                 `json:"name"`
	Status        domain.MilestoneStatus `json:"status"`
	Color         string                 `json:"color,omitempty"`
	Due           *time.Time             `json:"due,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	OpenTickets   int64                  `json:"open_tickets"`
	ClosedTickets int64                  `json:"closed_tickets"`
}
