package index

import (
	"context"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// Filter narrows a ticket query.
type Filter struct {
	Statuses    []domain.TicketStatus
	Types       []domain.TicketType
	Milestone   *string
	Responsible *string
	Label       *string
	Open        *bool
	Limit       int
	Offset      int
}

// Indexer is the query/index collaborator. The ticket core only supplies
// it with projected snapshots; listing and filtering is the surrounding
// application's concern.
type Indexer interface {
	Index(ctx context.Context, ticket *domain.Ticket) error
	Remove(ctx context.Context, repository string, number int64) error
	Query(ctx context.Context, repository string, filter Filter) ([]domain.Ticket, error)
	CountByMilestone(ctx context.Context, repository, milestone string) (open int64, closed int64, err error)
}
