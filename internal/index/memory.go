package index

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// MemoryIndexer is a process-local index keyed by repository and ticket
// number. It serves as the default query backend when no external search
// service is wired in.
type MemoryIndexer struct {
	mu      sync.RWMutex
	tickets map[string]map[int64]domain.Ticket
}

// NewMemoryIndexer creates an empty index.
func NewMemoryIndexer() *MemoryIndexer {
	return &MemoryIndexer{tickets: make(map[string]map[int64]domain.Ticket)}
}

// Index stores a snapshot, replacing any previous one for the ticket.
func (m *MemoryIndexer) Index(ctx context.Context, ticket *domain.Ticket) error {
	if ticket == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	repo := m.tickets[ticket.Repository]
	if repo == nil {
		repo = make(map[int64]domain.Ticket)
		m.tickets[ticket.Repository] = repo
	}
	repo[ticket.Number] = *ticket
	return nil
}

// Remove drops a ticket from the index.
func (m *MemoryIndexer) Remove(ctx context.Context, repository string, number int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets[repository], number)
	return nil
}

// Query returns snapshots matching the filter, ordered by ticket number.
func (m *MemoryIndexer) Query(ctx context.Context, repository string, filter Filter) ([]domain.Ticket, error) {
	m.mu.RLock()
	matches := make([]domain.Ticket, 0)
	for _, ticket := range m.tickets[repository] {
		if matchesFilter(&ticket, filter) {
			matches = append(matches, ticket)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Number < matches[j].Number })

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []domain.Ticket{}, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matches) {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// CountByMilestone returns the open/closed ticket counts for a milestone.
func (m *MemoryIndexer) CountByMilestone(ctx context.Context, repository, milestone string) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var open, closed int64
	for _, ticket := range m.tickets[repository] {
		if ticket.Milestone != milestone {
			continue
		}
		if ticket.IsClosed() {
			closed++
		} else {
			open++
		}
	}
	return open, closed, nil
}

func matchesFilter(ticket *domain.Ticket, filter Filter) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, ticket.Type) {
		return false
	}
	if filter.Milestone != nil && ticket.Milestone != *filter.Milestone {
		return false
	}
	if filter.Responsible != nil && ticket.Responsible != *filter.Responsible {
		return false
	}
	if filter.Open != nil && ticket.IsOpen() != *filter.Open {
		return false
	}
	if filter.Label != nil {
		found := false
		for _, label := range ticket.Labels() {
			if label == *filter.Label {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsStatus(haystack []domain.TicketStatus, needle domain.TicketStatus) bool {
	for _, status := range haystack {
		if status == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []domain.TicketType, needle domain.TicketType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}
