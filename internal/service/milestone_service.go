package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/events"
	"github.com/spec-kit/forge-tickets/internal/index"
	"github.com/spec-kit/forge-tickets/internal/repository"
)

// MilestoneService manages repository milestones and keeps referencing
// tickets consistent when a milestone is renamed or removed.
type MilestoneService struct {
	milestones repository.MilestoneStore
	tickets    *TicketService
	indexer    index.Indexer
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// MilestoneDependencies bundles collaborators for the milestone service.
type MilestoneDependencies struct {
	Milestones repository.MilestoneStore
	Tickets    *TicketService
	Indexer    index.Indexer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewMilestoneService constructs the service.
func NewMilestoneService(deps MilestoneDependencies) *MilestoneService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilestoneService{
		milestones: deps.Milestones,
		tickets:    deps.Tickets,
		indexer:    deps.Indexer,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// MilestoneInput carries creation and update parameters.
type MilestoneInput struct {
	Name  string
	Color string
	Due   *time.Time
}

// Create registers a new open milestone.
func (s *MilestoneService) Create(ctx context.Context, repo string, input MilestoneInput) (*domain.Milestone, error) {
	if input.Name == "" {
		return nil, errors.New("milestone name is required")
	}
	milestone := &domain.Milestone{
		Repository: repo,
		Name:       input.Name,
		Status:     domain.MilestoneOpen,
		Color:      input.Color,
		Due:        input.Due,
	}
	if err := s.milestones.Create(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// Edit updates the color and due date of an existing milestone.
func (s *MilestoneService) Edit(ctx context.Context, repo, name string, input MilestoneInput) (*domain.Milestone, error) {
	milestone, err := s.milestones.Get(ctx, repo, name)
	if err != nil {
		return nil, err
	}
	milestone.Color = input.Color
	milestone.Due = input.Due
	if err := s.milestones.Update(ctx, milestone); err != nil {
		return nil, err
	}
	return s.decorate(ctx, milestone)
}

// Rename changes a milestone's name and rewrites the milestone field of
// every ticket that references the old name.
func (s *MilestoneService) Rename(ctx context.Context, repo, oldName, newName, actor string) (*domain.Milestone, error) {
	if newName == "" {
		return nil, errors.New("milestone name is required")
	}
	if err := s.milestones.Rename(ctx, repo, oldName, newName); err != nil {
		return nil, err
	}
	if err := s.retargetTickets(ctx, repo, oldName, newName, actor); err != nil {
		return nil, err
	}
	milestone, err := s.milestones.Get(ctx, repo, newName)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, milestone)
}

// Close marks a milestone closed. Referencing tickets are untouched.
func (s *MilestoneService) Close(ctx context.Context, repo, name string) (*domain.Milestone, error) {
	return s.setStatus(ctx, repo, name, domain.MilestoneClosed)
}

// Reopen marks a closed milestone open again.
func (s *MilestoneService) Reopen(ctx context.Context, repo, name string) (*domain.Milestone, error) {
	return s.setStatus(ctx, repo, name, domain.MilestoneOpen)
}

func (s *MilestoneService) setStatus(ctx context.Context, repo, name string, status domain.MilestoneStatus) (*domain.Milestone, error) {
	milestone, err := s.milestones.Get(ctx, repo, name)
	if err != nil {
		return nil, err
	}
	milestone.Status = status
	if err := s.milestones.Update(ctx, milestone); err != nil {
		return nil, err
	}
	return s.decorate(ctx, milestone)
}

// Delete removes a milestone and clears the milestone field of every
// ticket that referenced it.
func (s *MilestoneService) Delete(ctx context.Context, repo, name, actor string) error {
	if err := s.milestones.Delete(ctx, repo, name); err != nil {
		return err
	}
	if err := s.retargetTickets(ctx, repo, name, "", actor); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventMilestoneRemoved,
		Repository: repo,
		Actor:      actor,
		Payload:    events.MilestoneRemovedPayload{Milestone: name},
	})
	return nil
}

// Get returns a milestone with its ticket tallies.
func (s *MilestoneService) Get(ctx context.Context, repo, name string) (*domain.Milestone, error) {
	milestone, err := s.milestones.Get(ctx, repo, name)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, milestone)
}

// List returns all milestones of a repository with ticket tallies.
func (s *MilestoneService) List(ctx context.Context, repo string) ([]domain.Milestone, error) {
	milestones, err := s.milestones.List(ctx, repo)
	if err != nil {
		return nil, err
	}
	for i := range milestones {
		if _, err := s.decorate(ctx, &milestones[i]); err != nil {
			return nil, err
		}
	}
	return milestones, nil
}

func (s *MilestoneService) decorate(ctx context.Context, milestone *domain.Milestone) (*domain.Milestone, error) {
	open, closed, err := s.indexer.CountByMilestone(ctx, milestone.Repository, milestone.Name)
	if err != nil {
		return nil, err
	}
	milestone.OpenTickets = open
	milestone.ClosedTickets = closed
	return milestone, nil
}

// retargetTickets rewrites the milestone field of every indexed ticket
// referencing name. Each rewrite is an ordinary privileged field edit so
// it lands in the ticket's change log like any other amendment.
func (s *MilestoneService) retargetTickets(ctx context.Context, repo, name, newName, actor string) error {
	tickets, err := s.indexer.Query(ctx, repo, index.Filter{Milestone: &name})
	if err != nil {
		return err
	}
	var errs []error
	for i := range tickets {
		_, err := s.tickets.EditFields(ctx, repo, tickets[i].Number, actor, FieldEditInput{Milestone: &newName}, true)
		if err != nil {
			s.logger.Warn("milestone retarget failed",
				zap.String("repository", repo),
				zap.Int64("ticket", tickets[i].Number),
				zap.String("milestone", name),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MilestoneService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
