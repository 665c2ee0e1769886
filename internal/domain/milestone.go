package domain

import "time"

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestoneOpen   MilestoneStatus = "OPEN"
	MilestoneClosed MilestoneStatus = "CLOSED"
)

// Milestone is a named bucket tickets reference by name. The reference is
// weak: deleting a milestone clears the field on referencing tickets but
// never deletes the tickets.
type Milestone struct {
	Repository string          `json:"repository"`
	Name       string          `json:"name"`
	Status     MilestoneStatus `json:"status"`
	Color      string          `json:"color,omitempty"`
	Due        *time.Time      `json:"due,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	// derived from the ticket index, never stored
	OpenTickets   int64 `json:"open_tickets"`
	ClosedTickets int64 `json:"closed_tickets"`
}
