package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

func indexedTicket(t *testing.T, idx *MemoryIndexer, number int64, ticketType domain.TicketType, status domain.TicketStatus, milestone string) {
	t.Helper()
	change := domain.NewChange("alice")
	change.SetField(domain.FieldTitle, "ticket")
	change.SetField(domain.FieldType, string(ticketType))
	changes := []domain.Change{change}
	if status != domain.TicketStatusNew {
		open := domain.NewChange("alice")
		open.SetField(domain.FieldStatus, string(domain.TicketStatusOpen))
		changes = append(changes, open)
	}
	if status != domain.TicketStatusNew && status != domain.TicketStatusOpen {
		next := domain.NewChange("alice")
		next.SetField(domain.FieldStatus, string(status))
		changes = append(changes, next)
	}
	if milestone != "" {
		assign := domain.NewChange("alice")
		assign.SetField(domain.FieldMilestone, milestone)
		changes = append(changes, assign)
	}
	ticket, err := domain.BuildTicket("demo.git", number, changes)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), ticket))
}

func TestMemoryIndexer_QueryFilters(t *testing.T) {
	idx := NewMemoryIndexer()
	ctx := context.Background()

	indexedTicket(t, idx, 1, domain.TypeBug, domain.TicketStatusOpen, "v1.0")
	indexedTicket(t, idx, 2, domain.TypeBug, domain.TicketStatusNew, "")
	indexedTicket(t, idx, 3, domain.TypeProposal, domain.TicketStatusOpen, "v1.0")

	all, err := idx.Query(ctx, "demo.git", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Number)

	bugs, err := idx.Query(ctx, "demo.git", Filter{Types: []domain.TicketType{domain.TypeBug}})
	require.NoError(t, err)
	assert.Len(t, bugs, 2)

	open, err := idx.Query(ctx, "demo.git", Filter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	milestone := "v1.0"
	tagged, err := idx.Query(ctx, "demo.git", Filter{Milestone: &milestone})
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	paged, err := idx.Query(ctx, "demo.git", Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, int64(2), paged[0].Number)

	other, err := idx.Query(ctx, "other.git", Filter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryIndexer_CountByMilestone(t *testing.T) {
	idx := NewMemoryIndexer()
	ctx := context.Background()

	indexedTicket(t, idx, 1, domain.TypeBug, domain.TicketStatusOpen, "v1.0")
	indexedTicket(t, idx, 2, domain.TypeBug, domain.TicketStatusFixed, "v1.0")
	indexedTicket(t, idx, 3, domain.TypeBug, domain.TicketStatusOpen, "v2.0")

	open, closed, err := idx.CountByMilestone(ctx, "demo.git", "v1.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)
	assert.Equal(t, int64(1), closed)
}

func TestMemoryIndexer_Remove(t *testing.T) {
	idx := NewMemoryIndexer()
	ctx := context.Background()

	indexedTicket(t, idx, 1, domain.TypeBug, domain.TicketStatusOpen, "")
	require.NoError(t, idx.Remove(ctx, "demo.git", 1))

	all, err := idx.Query(ctx, "demo.git", Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
