package domain

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew       TicketStatus = "NEW"
	TicketStatusOpen      TicketStatus = "OPEN"
	TicketStatusOnHold    TicketStatus = "ON_HOLD"
	TicketStatusFixed     TicketStatus = "FIXED"
	TicketStatusResolved  TicketStatus = "RESOLVED"
	TicketStatusMerged    TicketStatus = "MERGED"
	TicketStatusDeclined  TicketStatus = "DECLINED"
	TicketStatusDuplicate TicketStatus = "DUPLICATE"
	TicketStatusInvalid   TicketStatus = "INVALID"
	TicketStatusWontfix   TicketStatus = "WONTFIX"
	TicketStatusAbandoned TicketStatus = "ABANDONED"
)

// IsClosed reports whether the status is terminal. "Closed" is a derived
// predicate, not a literal status.
func (s TicketStatus) IsClosed() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusOnHold:
		return false
	}
	return true
}

// TicketType enumerates the kinds of tracked work.
type TicketType string

const (
	TypeProposal    TicketType = "PROPOSAL"
	TypeBug         TicketType = "BUG"
	TypeEnhancement TicketType = "ENHANCEMENT"
	TypeQuestion    TicketType = "QUESTION"
	TypeTask        TicketType = "TASK"
	TypeMaintenance TicketType = "MAINTENANCE"
)

// proposal tickets carry patchsets and may be merged; bugs and requests
// resolve through their own terminal states.
var proposalTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:  {TicketStatusOpen, TicketStatusDeclined, TicketStatusAbandoned},
	TicketStatusOpen: {TicketStatusMerged, TicketStatusDeclined, TicketStatusAbandoned},
}

var bugTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:    {TicketStatusOpen, TicketStatusOnHold},
	TicketStatusOpen:   {TicketStatusOnHold, TicketStatusFixed, TicketStatusInvalid, TicketStatusWontfix, TicketStatusDuplicate},
	TicketStatusOnHold: {TicketStatusOpen, TicketStatusFixed, TicketStatusInvalid, TicketStatusWontfix, TicketStatusDuplicate},
}

var requestTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:    {TicketStatusOpen, TicketStatusOnHold},
	TicketStatusOpen:   {TicketStatusOnHold, TicketStatusResolved, TicketStatusDeclined, TicketStatusDuplicate, TicketStatusInvalid},
	TicketStatusOnHold: {TicketStatusOpen, TicketStatusResolved, TicketStatusDeclined, TicketStatusDuplicate, TicketStatusInvalid},
}

func workflowFor(t TicketType) map[TicketStatus][]TicketStatus {
	switch t {
	case TypeProposal:
		return proposalTransitions
	case TypeBug:
		return bugTransitions
	default:
		return requestTransitions
	}
}

// ValidTransition reports whether a status change is permitted by the
// workflow table for the ticket type. Terminal states have no outgoing
// transitions.
func ValidTransition(ticketType TicketType, from, to TicketStatus) bool {
	for _, candidate := range workflowFor(ticketType)[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the status values reachable from the given
// state for the ticket type.
func AllowedTransitions(ticketType TicketType, from TicketStatus) []TicketStatus {
	targets := workflowFor(ticketType)[from]
	out := make([]TicketStatus, len(targets))
	copy(out, targets)
	return out
}
