package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/events"
	"github.com/spec-kit/forge-tickets/internal/index"
	"github.com/spec-kit/forge-tickets/internal/repository"
	"github.com/spec-kit/forge-tickets/internal/vcs"
	apperrors "github.com/spec-kit/forge-tickets/pkg/util"
)

// TicketService coordinates the ticket workflow: it is the single writer
// to the ChangeLog, reprojects snapshots after every append, maintains the
// snapshot cache and the query index, and publishes domain events.
type TicketService struct {
	changes     repository.ChangeLogStore
	cache       repository.SnapshotCache
	indexer     index.Indexer
	dispatcher  events.Dispatcher
	probe       vcs.Probe
	diffTimeout time.Duration
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	ChangeLog   repository.ChangeLogStore
	Cache       repository.SnapshotCache
	Indexer     index.Indexer
	Dispatcher  events.Dispatcher
	Probe       vcs.Probe
	DiffTimeout time.Duration
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.DiffTimeout <= 0 {
		deps.DiffTimeout = 10 * time.Second
	}
	return &TicketService{
		changes:     deps.ChangeLog,
		cache:       deps.Cache,
		indexer:     deps.Indexer,
		dispatcher:  deps.Dispatcher,
		probe:       deps.Probe,
		diffTimeout: deps.DiffTimeout,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Type    domain.TicketType
	Title   string
	Body    string
	Topic   string
	MergeTo string
}

// FieldEditInput describes a partial field edit. Nil pointers leave the
// field untouched; empty strings clear it.
type FieldEditInput struct {
	Title       *string
	Body        *string
	Topic       *string
	Type        *domain.TicketType
	Status      *domain.TicketStatus
	Responsible *string
	Milestone   *string
	MergeTo     *string
}

// PatchsetInput describes a patchset upload. Diff statistics are computed
// here, once, from the version-control backend.
type PatchsetInput struct {
	Type   domain.PatchsetType
	Base   string
	Tip    string
	Parent string
}

// CreateTicket appends the creation change and assigns a ticket number.
// The initial status is always New, set implicitly by the first change.
func (s *TicketService) CreateTicket(ctx context.Context, repository, author string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if input.Type == "" {
		input.Type = domain.TypeTask
	}

	change := domain.NewChange(author)
	change.SetField(domain.FieldType, string(input.Type))
	change.SetField(domain.FieldTitle, title)
	if body := strings.TrimSpace(input.Body); body != "" {
		change.SetField(domain.FieldBody, body)
	}
	if topic := strings.TrimSpace(input.Topic); topic != "" {
		change.SetField(domain.FieldTopic, topic)
	}
	if input.MergeTo != "" {
		change.SetField(domain.FieldMergeTo, input.MergeTo)
	}
	change.Watch(author)

	number, err := s.changes.CreateTicket(ctx, repository, change)
	if err != nil {
		return nil, err
	}

	ticket, err := domain.BuildTicket(repository, number, []domain.Change{change})
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, ticket)
	_ = s.indexer.Index(ctx, ticket)
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketCreated,
		Repository: repository,
		Number:     number,
		Actor:      author,
		Ticket:     ticket,
	})
	return ticket, nil
}

// GetTicket returns the current snapshot, from cache when possible.
func (s *TicketService) GetTicket(ctx context.Context, repository string, number int64) (*domain.Ticket, error) {
	if ticket, ok := s.cache.Get(ctx, repository, number); ok {
		return ticket, nil
	}
	ticket, err := s.loadTicket(ctx, repository, number)
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, ticket)
	return ticket, nil
}

// LoadFresh re-projects the ticket from the ChangeLog, bypassing the
// snapshot cache.
func (s *TicketService) LoadFresh(ctx context.Context, repository string, number int64) (*domain.Ticket, error) {
	return s.loadTicket(ctx, repository, number)
}

// ListTickets queries the index.
func (s *TicketService) ListTickets(ctx context.Context, repository string, filter index.Filter) ([]domain.Ticket, error) {
	return s.indexer.Query(ctx, repository, filter)
}

// EditFields appends a field-edit change. Status edits are validated
// against the workflow table before append; responsible and milestone are
// only settable by a privileged caller.
func (s *TicketService) EditFields(ctx context.Context, repository string, number int64, author string, input FieldEditInput, privileged bool) (*domain.Ticket, error) {
	change := domain.NewChange(author)
	if input.Title != nil {
		change.SetField(domain.FieldTitle, strings.TrimSpace(*input.Title))
	}
	if input.Body != nil {
		change.SetField(domain.FieldBody, *input.Body)
	}
	if input.Topic != nil {
		change.SetField(domain.FieldTopic, strings.TrimSpace(*input.Topic))
	}
	if input.Type != nil {
		change.SetField(domain.FieldType, string(*input.Type))
	}
	if input.Status != nil {
		change.SetField(domain.FieldStatus, string(*input.Status))
	}
	if input.Responsible != nil {
		change.SetField(domain.FieldResponsible, *input.Responsible)
	}
	if input.Milestone != nil {
		change.SetField(domain.FieldMilestone, *input.Milestone)
	}
	if input.MergeTo != nil {
		change.SetField(domain.FieldMergeTo, *input.MergeTo)
	}
	if len(change.Fields) == 0 {
		return nil, apperrors.NewValidationError("no fields to edit", nil)
	}
	if !privileged {
		for field := range change.Fields {
			if field.Privileged() {
				return nil, apperrors.NewForbidden("field requires elevated rights: " + string(field))
			}
		}
	}

	if input.Status == nil {
		ticket, _, err := s.appendChange(ctx, repository, number, change, events.EventFieldsChanged, events.FieldsChangedPayload{Fields: change.Fields})
		return ticket, err
	}
	ticket, oldStatus, err := s.appendChange(ctx, repository, number, change, events.EventStatusChanged, nil)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventStatusChanged,
		Repository: repository,
		Number:     number,
		Actor:      author,
		Ticket:     ticket,
		Payload:    events.StatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
	})
	return ticket, nil
}

// AddComment appends a discussion comment.
func (s *TicketService) AddComment(ctx context.Context, repository string, number int64, author, text string, source domain.CommentSource, replyTo string) (*domain.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("comment text required", nil)
	}
	change := domain.NewChange(author)
	comment := change.AttachComment(text, source)
	comment.ReplyTo = replyTo

	ticket, _, err := s.appendChange(ctx, repository, number, change, events.EventCommentAdded, events.CommentAddedPayload{
		CommentID: comment.ID,
		Source:    source,
		Preview:   preview(text, 120),
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// EditComment supersedes an existing comment's text. Only the original
// comment author may edit it.
func (s *TicketService) EditComment(ctx context.Context, repository string, number int64, author, commentID, text string) (*domain.Ticket, error) {
	return s.amendComment(ctx, repository, number, author, commentID, strings.TrimSpace(text), false)
}

// DeleteComment marks a comment deleted. The change itself remains in the
// log; the projection hides the comment.
func (s *TicketService) DeleteComment(ctx context.Context, repository string, number int64, author, commentID string) (*domain.Ticket, error) {
	return s.amendComment(ctx, repository, number, author, commentID, "", true)
}

func (s *TicketService) amendComment(ctx context.Context, repository string, number int64, author, commentID, text string, deleted bool) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, repository, number)
	if err != nil {
		return nil, err
	}
	var original *domain.Change
	for _, change := range ticket.Comments() {
		if change.Comment.ID == commentID {
			c := change
			original = &c
			break
		}
	}
	if original == nil {
		return nil, apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
	}
	if original.Author != author {
		return nil, apperrors.NewForbidden("only the comment author may amend it")
	}

	change := domain.NewChange(author)
	amended := *original.Comment
	if deleted {
		amended.Deleted = true
	} else {
		amended.Text = text
	}
	change.Comment = &amended

	updated, _, err := s.appendChange(ctx, repository, number, change, events.EventCommentAdded, nil)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Watch registers the user as a watcher.
func (s *TicketService) Watch(ctx context.Context, repository string, number int64, username string) (*domain.Ticket, error) {
	return s.toggleSet(ctx, repository, number, username, func(c *domain.Change) { c.Watch(username) })
}

// Unwatch removes the user from the watcher set.
func (s *TicketService) Unwatch(ctx context.Context, repository string, number int64, username string) (*domain.Ticket, error) {
	return s.toggleSet(ctx, repository, number, username, func(c *domain.Change) { c.Unwatch(username) })
}

// Vote registers the user's vote.
func (s *TicketService) Vote(ctx context.Context, repository string, number int64, username string) (*domain.Ticket, error) {
	return s.toggleSet(ctx, repository, number, username, func(c *domain.Change) { c.Vote(username) })
}

// Unvote withdraws the user's vote.
func (s *TicketService) Unvote(ctx context.Context, repository string, number int64, username string) (*domain.Ticket, error) {
	return s.toggleSet(ctx, repository, number, username, func(c *domain.Change) { c.Unvote(username) })
}

// AddLabels attaches labels to the ticket.
func (s *TicketService) AddLabels(ctx context.Context, repository string, number int64, author string, labels ...string) (*domain.Ticket, error) {
	return s.toggleSet(ctx, repository, number, author, func(c *domain.Change) { c.Label(labels...) })
}

// RemoveLabels detaches labels from the ticket.
func (s *TicketService) RemoveLabels(ctx context.Context, repository string, number int64, author string, labels ...string) (*domain.Ticket, error) {
	return s.toggleSet(ctx, repository, number, author, func(c *domain.Change) { c.Unlabel(labels...) })
}

func (s *TicketService) toggleSet(ctx context.Context, repository string, number int64, author string, apply func(*domain.Change)) (*domain.Ticket, error) {
	change := domain.NewChange(author)
	apply(&change)
	if len(change.Fields) == 0 {
		return nil, apperrors.NewValidationError("nothing to change", nil)
	}
	ticket, _, err := s.appendChange(ctx, repository, number, change, events.EventFieldsChanged, events.FieldsChangedPayload{Fields: change.Fields})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// UploadPatchset records a new patchset revision. Rejected when the ticket
// is closed. Revision numbering: a proposal opens a new patchset number,
// every other type revises the current one. Diff statistics come from the
// version-control backend and are cached on the patchset value.
func (s *TicketService) UploadPatchset(ctx context.Context, repository string, number int64, author string, input PatchsetInput) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, repository, number)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, domain.ErrTicketClosed
	}
	if input.Tip == "" || input.Base == "" {
		return nil, apperrors.NewValidationError("base and tip required", nil)
	}
	if input.Type == "" {
		input.Type = domain.PatchsetProposal
	}

	ps := domain.Patchset{
		Type:   input.Type,
		Base:   input.Base,
		Tip:    input.Tip,
		Parent: input.Parent,
	}
	current := ticket.CurrentPatchset()
	switch {
	case current == nil:
		ps.Number, ps.Rev = 1, 1
	case input.Type == domain.PatchsetProposal:
		ps.Number, ps.Rev = current.Number+1, 1
	default:
		ps.Number, ps.Rev = current.Number, current.Rev+1
	}

	diffCtx, cancel := context.WithTimeout(ctx, s.diffTimeout)
	defer cancel()
	stat, err := s.probe.DiffStat(diffCtx, repository, input.Base, input.Tip)
	if err != nil {
		return nil, err
	}
	ps.Commits = stat.Commits
	ps.Insertions = stat.Insertions
	ps.Deletions = stat.Deletions
	ps.Added = stat.Commits
	if current != nil && ps.Number == current.Number && stat.Commits > current.Commits {
		ps.Added = stat.Commits - current.Commits
	}

	change := domain.NewChange(author)
	change.Patchset = &ps
	change.Watch(author)

	updated, _, err := s.appendChange(ctx, repository, number, change, events.EventPatchsetUploaded, events.PatchsetUploadedPayload{Patchset: ps})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddReview records a reviewer's verdict on the current patchset revision.
// A newer review by the same reviewer for the same patchset number
// supersedes the previous one.
func (s *TicketService) AddReview(ctx context.Context, repository string, number int64, reviewer string, score domain.ReviewScore) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, repository, number)
	if err != nil {
		return nil, err
	}
	current := ticket.CurrentPatchset()
	if current == nil {
		return nil, domain.ErrNoPatchset
	}

	review := domain.Review{
		Patchset: current.Number,
		Rev:      current.Rev,
		Reviewer: reviewer,
		Score:    score,
	}
	change := domain.NewChange(reviewer)
	change.Review = &review

	updated, _, err := s.appendChange(ctx, repository, number, change, events.EventReviewAdded, events.ReviewAddedPayload{Review: review})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RebuildIndex re-projects every ticket in the repository into the index.
// RebuildAllIndexes reloads every ticket of every known repository into the
// indexer. The in-memory index starts empty, so this runs at startup.
func (s *TicketService) RebuildAllIndexes(ctx context.Context) error {
	repositories, err := s.changes.ListRepositories(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, repository := range repositories {
		if err := s.RebuildIndex(ctx, repository); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TicketService) RebuildIndex(ctx context.Context, repository string) error {
	numbers, err := s.changes.ListNumbers(ctx, repository)
	if err != nil {
		return err
	}
	var errs []error
	for _, number := range numbers {
		ticket, err := s.loadTicket(ctx, repository, number)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.indexer.Index(ctx, ticket); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TicketService) loadTicket(ctx context.Context, repository string, number int64) (*domain.Ticket, error) {
	changes, err := s.changes.ReadAll(ctx, repository, number)
	if err != nil {
		return nil, err
	}
	return domain.BuildTicket(repository, number, changes)
}

// appendChange validates the candidate against a fresh projection, appends
// it, re-projects, refreshes cache and index, and publishes the event. The
// change is never appended when validation fails. The validate-and-append
// section holds the per-ticket lock so concurrent writers cannot both pass
// validation against the same stale projection.
func (s *TicketService) appendChange(ctx context.Context, repository string, number int64, change domain.Change, eventType events.EventType, payload interface{}) (*domain.Ticket, domain.TicketStatus, error) {
	var ticket *domain.Ticket
	var oldStatus domain.TicketStatus
	err := s.changes.WithTicketLock(ctx, repository, number, func(ctx context.Context) error {
		before, err := s.loadTicket(ctx, repository, number)
		if err != nil {
			return err
		}
		oldStatus = before.Status

		candidate := append(append([]domain.Change{}, before.Changes...), change)
		projected, err := domain.BuildTicket(repository, number, candidate)
		if err != nil {
			return err
		}

		if _, err := s.changes.Append(ctx, repository, number, change); err != nil {
			return err
		}
		// the lock is held, so the projection of candidate is the log's state
		ticket = projected
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	s.cache.Put(ctx, ticket)
	_ = s.indexer.Index(ctx, ticket)

	// status-changed events are published by the caller, which knows the
	// old status
	if eventType != events.EventStatusChanged {
		s.publishEvent(ctx, events.Event{
			Type:       eventType,
			Repository: repository,
			Number:     number,
			Actor:      change.Author,
			Ticket:     ticket,
			Payload:    payload,
		})
	}
	return ticket, oldStatus, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
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

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
