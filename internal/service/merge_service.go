package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/events"
	"github.com/spec-kit/forge-tickets/internal/index"
	"github.com/spec-kit/forge-tickets/internal/observability"
	"github.com/spec-kit/forge-tickets/internal/repository"
	"github.com/spec-kit/forge-tickets/internal/vcs"
)

// MergeOutcome is a merge-eligibility or merge-execution verdict. Outcomes
// are expected business results the caller branches on, not errors.
type MergeOutcome string

const (
	MergeOutcomeMergeable                MergeOutcome = "MERGEABLE"
	MergeOutcomeAlreadyMerged            MergeOutcome = "ALREADY_MERGED"
	MergeOutcomeMissingIntegrationBranch MergeOutcome = "MISSING_INTEGRATION_BRANCH"
	MergeOutcomeConflicted               MergeOutcome = "CONFLICTED"
	MergeOutcomeVetoed                   MergeOutcome = "VETOED"
	MergeOutcomeNotApproved              MergeOutcome = "NOT_APPROVED"
	MergeOutcomeTicketClosed             MergeOutcome = "TICKET_CLOSED"
	MergeOutcomeNoPatchset               MergeOutcome = "NO_PATCHSET"
	MergeOutcomeStalePatchset            MergeOutcome = "STALE_PATCHSET"
	MergeOutcomeMerged                   MergeOutcome = "MERGED"
	MergeOutcomeFailed                   MergeOutcome = "FAILED"
)

// MergeResult reports the result of a merge execution.
type MergeResult struct {
	Outcome   MergeOutcome `json:"outcome"`
	MergeSha  string       `json:"merge_sha,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

// MergeService evaluates merge eligibility and executes merges under
// optimistic concurrency control.
type MergeService struct {
	changes      repository.ChangeLogStore
	cache        repository.SnapshotCache
	indexer      index.Indexer
	dispatcher   events.Dispatcher
	probe        vcs.Probe
	metrics      *observability.Metrics
	mergeTimeout time.Duration
}

// MergeDependencies bundles collaborators for the merge service.
type MergeDependencies struct {
	ChangeLog    repository.ChangeLogStore
	Cache        repository.SnapshotCache
	Indexer      index.Indexer
	Dispatcher   events.Dispatcher
	Probe        vcs.Probe
	Metrics      *observability.Metrics
	MergeTimeout time.Duration
}

// NewMergeService constructs the service.
func NewMergeService(deps MergeDependencies) *MergeService {
	if deps.MergeTimeout <= 0 {
		deps.MergeTimeout = 30 * time.Second
	}
	return &MergeService{
		changes:      deps.ChangeLog,
		cache:        deps.Cache,
		indexer:      deps.Indexer,
		dispatcher:   deps.Dispatcher,
		probe:        deps.Probe,
		metrics:      deps.Metrics,
		mergeTimeout: deps.MergeTimeout,
	}
}

// Evaluate combines ticket state, the review verdict and the backend's
// merge-ability probe into a single eligibility outcome. Only
// MergeOutcomeMergeable authorizes execution; every other outcome is
// surfaced verbatim to the caller.
func (s *MergeService) Evaluate(ctx context.Context, repo string, number int64, policy domain.ReviewPolicy) (MergeOutcome, error) {
	ticket, err := s.loadTicket(ctx, repo, number)
	if err != nil {
		return "", err
	}
	return s.evaluateTicket(ctx, ticket, policy)
}

func (s *MergeService) evaluateTicket(ctx context.Context, ticket *domain.Ticket, policy domain.ReviewPolicy) (MergeOutcome, error) {
	current := ticket.CurrentPatchset()
	if current == nil {
		return MergeOutcomeNoPatchset, nil
	}
	if ticket.Status != domain.TicketStatusOpen {
		return MergeOutcomeTicketClosed, nil
	}

	switch domain.ReviewVerdict(ticket, policy) {
	case domain.VerdictVetoed:
		return MergeOutcomeVetoed, nil
	case domain.VerdictPending:
		return MergeOutcomeNotApproved, nil
	}

	status, err := s.probe.CanMerge(ctx, ticket.Repository, current.Tip, ticket.MergeTo)
	if err != nil {
		return "", err
	}
	return outcomeFromMergeStatus(status), nil
}

func outcomeFromMergeStatus(status vcs.MergeStatus) MergeOutcome {
	switch status {
	case vcs.MergeStatusMergeable:
		return MergeOutcomeMergeable
	case vcs.MergeStatusAlreadyMerged:
		return MergeOutcomeAlreadyMerged
	case vcs.MergeStatusMissingBranch:
		return MergeOutcomeMissingIntegrationBranch
	default:
		return MergeOutcomeConflicted
	}
}

// Merge executes a merge for the patchset tip the caller evaluated.
// Steps run as one critical section per ticket: the ticket is re-projected
// fresh, the tip is re-confirmed against expectedTip (StalePatchset when
// the patchset advanced), the review verdict is re-run (a veto landing
// between evaluation and execution blocks the merge), and only then is the
// backend merge performed. The merge Change is appended solely on
// confirmed success. A request cancelled mid-merge does not abort the
// backend merge; the result records that cancellation occurred.
func (s *MergeService) Merge(ctx context.Context, repo string, number int64, expectedTip, mergedBy string, policy domain.ReviewPolicy) (MergeResult, error) {
	var result MergeResult
	err := s.changes.WithTicketLock(ctx, repo, number, func(ctx context.Context) error {
		ticket, err := s.loadTicket(ctx, repo, number)
		if err != nil {
			return err
		}

		current := ticket.CurrentPatchset()
		if current == nil {
			result.Outcome = MergeOutcomeNoPatchset
			return nil
		}
		if current.Tip != expectedTip {
			result.Outcome = MergeOutcomeStalePatchset
			return nil
		}
		if ticket.Status != domain.TicketStatusOpen {
			result.Outcome = MergeOutcomeTicketClosed
			return nil
		}
		switch domain.ReviewVerdict(ticket, policy) {
		case domain.VerdictVetoed:
			result.Outcome = MergeOutcomeVetoed
			return nil
		case domain.VerdictPending:
			result.Outcome = MergeOutcomeNotApproved
			return nil
		}

		canMerge, err := s.probe.CanMerge(ctx, repo, current.Tip, ticket.MergeTo)
		if err != nil {
			return err
		}
		if canMerge != vcs.MergeStatusMergeable {
			result.Outcome = outcomeFromMergeStatus(canMerge)
			return nil
		}

		// the backend merge must complete even if the request goes away
		mergeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mergeTimeout)
		defer cancel()

		message := mergeMessage(ticket)
		mergeSha, err := s.probe.Merge(mergeCtx, repo, current.Tip, ticket.MergeTo, message)
		if err != nil {
			if errors.Is(err, vcs.ErrConflict) {
				result.Outcome = MergeOutcomeFailed
				result.Reason = "merge conflict detected at execution"
				return nil
			}
			result.Outcome = MergeOutcomeFailed
			result.Reason = err.Error()
			return nil
		}

		change := domain.NewChange(mergedBy)
		change.SetField(domain.FieldStatus, string(domain.TicketStatusMerged))
		change.SetField(domain.FieldMergeSha, mergeSha)
		if _, err := s.changes.Append(mergeCtx, repo, number, change); err != nil {
			// the branch advanced but the log did not; the caller must
			// reconcile from the backend state
			return err
		}

		merged, err := domain.BuildTicket(repo, number, append(append([]domain.Change{}, ticket.Changes...), change))
		if err != nil {
			return err
		}
		s.cache.Put(mergeCtx, merged)
		_ = s.indexer.Index(mergeCtx, merged)
		s.publishEvent(mergeCtx, events.Event{
			Type:       events.EventTicketMerged,
			Repository: repo,
			Number:     number,
			Actor:      mergedBy,
			Ticket:     merged,
			Payload:    events.TicketMergedPayload{MergeSha: mergeSha, MergeTo: merged.MergeTo},
		})

		result.Outcome = MergeOutcomeMerged
		result.MergeSha = mergeSha
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	result.Cancelled = ctx.Err() != nil
	if s.metrics != nil {
		s.metrics.RecordMergeOutcome(string(result.Outcome))
	}
	return result, nil
}

func mergeMessage(ticket *domain.Ticket) string {
	return fmt.Sprintf("Merge ticket #%d into %s: %s", ticket.Number, ticket.MergeTo, ticket.Title)
}

func (s *MergeService) loadTicket(ctx context.Context, repository string, number int64) (*domain.Ticket, error) {
	changes, err := s.changes.ReadAll(ctx, repository, number)
	if err != nil {
		return nil, err
	}
	return domain.BuildTicket(repository, number, changes)
}

func (s *MergeService) publishEvent(ctx context.Context, event events.Event) {
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
