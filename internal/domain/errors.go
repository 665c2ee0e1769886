package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition signals a status change outside the workflow
	// table for the ticket type. Rejected before append.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTicketClosed signals an operation that requires an open ticket.
	ErrTicketClosed = errors.New("ticket is closed")

	// ErrStalePatchset signals a merge attempted against a patchset that
	// is no longer current. The caller must re-fetch and retry explicitly.
	ErrStalePatchset = errors.New("patchset is no longer current")

	// ErrNoPatchset signals an operation that requires at least one patchset.
	ErrNoPatchset = errors.New("ticket has no patchset")

	// ErrDuplicatePatchset signals a (number, rev) pair that already exists.
	ErrDuplicatePatchset = errors.New("duplicate patchset revision")

	// ErrPatchsetRegression signals a patchset numbered below one already
	// uploaded.
	ErrPatchsetRegression = errors.New("patchset number regresses an existing patchset")
)

// InvalidTransitionError wraps ErrInvalidTransition with the rejected edge.
type InvalidTransitionError struct {
	Type TicketType
	From TicketStatus
	To   TicketStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s for %s ticket", e.From, e.To, e.Type)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
