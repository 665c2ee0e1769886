package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/events"
	"github.com/spec-kit/forge-tickets/internal/index"
	"github.com/spec-kit/forge-tickets/internal/vcs"
)

// memoryChangeLog is an in-process ChangeLogStore for tests.
type memoryChangeLog struct {
	mu       sync.Mutex
	logs     map[string][]domain.Change
	counters map[string]int64

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func newMemoryChangeLog() *memoryChangeLog {
	return &memoryChangeLog{
		logs:     make(map[string][]domain.Change),
		counters: make(map[string]int64),
	}
}

func logKey(repository string, number int64) string {
	return repository + "#" + strconv.FormatInt(number, 10)
}

func (m *memoryChangeLog) CreateTicket(ctx context.Context, repository string, first domain.Change) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[repository]++
	number := m.counters[repository]
	m.logs[logKey(repository, number)] = []domain.Change{first}
	return number, nil
}

func (m *memoryChangeLog) Append(ctx context.Context, repository string, number int64, change domain.Change) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey(repository, number)
	log, ok := m.logs[key]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	m.logs[key] = append(log, change)
	return int64(len(log) + 1), nil
}

func (m *memoryChangeLog) ReadAll(ctx context.Context, repository string, number int64) ([]domain.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[logKey(repository, number)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := make([]domain.Change, len(log))
	copy(out, log)
	return out, nil
}

func (m *memoryChangeLog) ListNumbers(ctx context.Context, repository string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0)
	for n := int64(1); n <= m.counters[repository]; n++ {
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryChangeLog) ListRepositories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.counters))
	for repository := range m.counters {
		out = append(out, repository)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryChangeLog) WithTicketLock(ctx context.Context, repository string, number int64, fn func(context.Context) error) error {
	m.lockMu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	key := logKey(repository, number)
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// noopCache satisfies the snapshot cache without caching anything.
type noopCache struct{}

func (noopCache) Get(ctx context.Context, repository string, number int64) (*domain.Ticket, bool) {
	return nil, false
}
func (noopCache) Put(ctx context.Context, ticket *domain.Ticket)                  {}
func (noopCache) Invalidate(ctx context.Context, repository string, number int64) {}

// fakeProbe is a scripted version-control backend.
type fakeProbe struct {
	mu         sync.Mutex
	diffStat   vcs.DiffStat
	canMerge   vcs.MergeStatus
	mergeSha   string
	mergeErr   error
	mergeCalls int
}

func (p *fakeProbe) DiffStat(ctx context.Context, repository, base, tip string) (vcs.DiffStat, error) {
	return p.diffStat, nil
}

func (p *fakeProbe) CanMerge(ctx context.Context, repository, tip, targetBranch string) (vcs.MergeStatus, error) {
	return p.canMerge, nil
}

func (p *fakeProbe) Merge(ctx context.Context, repository, tip, targetBranch, message string) (string, error) {
	p.mu.Lock()
	p.mergeCalls++
	p.mu.Unlock()
	if p.mergeErr != nil {
		return "", p.mergeErr
	}
	return p.mergeSha, nil
}

func (p *fakeProbe) mergeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mergeCalls
}

type fixture struct {
	store   *memoryChangeLog
	probe   *fakeProbe
	indexer *index.MemoryIndexer
	tickets *TicketService
}

func newFixture() *fixture {
	store := newMemoryChangeLog()
	probe := &fakeProbe{
		diffStat: vcs.DiffStat{Commits: 2, Insertions: 10, Deletions: 3},
		canMerge: vcs.MergeStatusMergeable,
		mergeSha: "merged-sha",
	}
	indexer := index.NewMemoryIndexer()
	tickets := NewTicketService(TicketDependencies{
		ChangeLog:  store,
		Cache:      noopCache{},
		Indexer:    indexer,
		Dispatcher: events.NewInMemoryDispatcher(),
		Probe:      probe,
	})
	return &fixture{store: store, probe: probe, indexer: indexer, tickets: tickets}
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func TestCreateTicket_AssignsSequentialNumbers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type:  domain.TypeBug,
		Title: "first",
	})
	require.NoError(t, err)
	second, err := f.tickets.CreateTicket(ctx, "demo.git", "bob", TicketCreateInput{Title: "second"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, domain.TicketStatusNew, first.Status)
	assert.Equal(t, domain.TypeBug, first.Type)
	// untyped tickets default to TASK
	assert.Equal(t, domain.TypeTask, second.Type)
	// the author starts out watching their own ticket
	assert.Equal(t, []string{"alice"}, first.Watchers())

	listed, err := f.tickets.ListTickets(ctx, "demo.git", index.Filter{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCreateTicket_TitleRequired(t *testing.T) {
	f := newFixture()
	_, err := f.tickets.CreateTicket(context.Background(), "demo.git", "alice", TicketCreateInput{Title: "   "})
	assert.Error(t, err)
}

func TestEditFields_StatusTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{Type: domain.TypeBug, Title: "a bug"})
	require.NoError(t, err)

	updated, err := f.tickets.EditFields(ctx, "demo.git", ticket.Number, "triager",
		FieldEditInput{Status: statusPtr(domain.TicketStatusOpen)}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)

	// bugs cannot go straight to MERGED via the workflow table
	_, err = f.tickets.EditFields(ctx, "demo.git", ticket.Number, "triager",
		FieldEditInput{Status: statusPtr(domain.TicketStatusMerged)}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// the rejected change never reached the log
	fresh, err := f.tickets.LoadFresh(ctx, "demo.git", ticket.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, fresh.Status)
	assert.Len(t, fresh.Changes, 2)
}

func TestEditFields_ConcurrentStatusEditsSerialized(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{Type: domain.TypeBug, Title: "a bug"})
	require.NoError(t, err)

	// two writers race to open the ticket; validation must run under the
	// ticket lock so only one OPEN change can land
	start := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := f.tickets.EditFields(ctx, "demo.git", ticket.Number, "triager",
				FieldEditInput{Status: statusPtr(domain.TicketStatusOpen)}, false)
			errs <- err
		}()
	}
	close(start)

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	// the loser's change never reached the log and the ticket still projects
	fresh, err := f.tickets.LoadFresh(ctx, "demo.git", ticket.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, fresh.Status)
	assert.Len(t, fresh.Changes, 2)
}

func TestEditFields_PrivilegedFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{Title: "a task"})
	require.NoError(t, err)

	_, err = f.tickets.EditFields(ctx, "demo.git", ticket.Number, "alice",
		FieldEditInput{Responsible: strPtr("bob")}, false)
	assert.Error(t, err)

	updated, err := f.tickets.EditFields(ctx, "demo.git", ticket.Number, "maintainer",
		FieldEditInput{Responsible: strPtr("bob"), Milestone: strPtr("v1.0")}, true)
	require.NoError(t, err)
	assert.Equal(t, "bob", updated.Responsible)
	assert.Equal(t, "v1.0", updated.Milestone)
}

func TestComments_EditAndDeleteByAuthorOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{Title: "a task"})
	require.NoError(t, err)

	withComment, err := f.tickets.AddComment(ctx, "demo.git", ticket.Number, "bob", "needs work", domain.CommentSourceUI, "")
	require.NoError(t, err)
	comments := withComment.Comments()
	require.Len(t, comments, 1)
	commentID := comments[0].Comment.ID

	_, err = f.tickets.EditComment(ctx, "demo.git", ticket.Number, "alice", commentID, "hijacked")
	assert.Error(t, err)

	edited, err := f.tickets.EditComment(ctx, "demo.git", ticket.Number, "bob", commentID, "needs more work")
	require.NoError(t, err)
	assert.Equal(t, "needs more work", edited.Comments()[0].Comment.Text)

	deleted, err := f.tickets.DeleteComment(ctx, "demo.git", ticket.Number, "bob", commentID)
	require.NoError(t, err)
	assert.Empty(t, deleted.Comments())
}

func TestUploadPatchset_Numbering(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type:    domain.TypeProposal,
		Title:   "a proposal",
		MergeTo: "main",
	})
	require.NoError(t, err)

	first, err := f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Base: "base0", Tip: "tip11",
	})
	require.NoError(t, err)
	current := first.CurrentPatchset()
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Number)
	assert.Equal(t, 1, current.Rev)
	assert.Equal(t, 2, current.Commits)
	assert.Equal(t, 10, current.Insertions)

	// a fast-forward revises the same patchset number
	second, err := f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Type: domain.PatchsetFastForward, Base: "base0", Tip: "tip12",
	})
	require.NoError(t, err)
	current = second.CurrentPatchset()
	assert.Equal(t, 1, current.Number)
	assert.Equal(t, 2, current.Rev)

	// a new proposal opens a new patchset number
	third, err := f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Type: domain.PatchsetProposal, Base: "base0", Tip: "tip21",
	})
	require.NoError(t, err)
	current = third.CurrentPatchset()
	assert.Equal(t, 2, current.Number)
	assert.Equal(t, 1, current.Rev)
}

func TestUploadPatchset_ClosedTicketRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type: domain.TypeProposal, Title: "a proposal",
	})
	require.NoError(t, err)

	_, err = f.tickets.EditFields(ctx, "demo.git", ticket.Number, "alice",
		FieldEditInput{Status: statusPtr(domain.TicketStatusDeclined)}, false)
	require.NoError(t, err)

	_, err = f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Base: "base0", Tip: "tip11",
	})
	assert.ErrorIs(t, err, domain.ErrTicketClosed)
}

func TestAddReview_RequiresPatchset(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type: domain.TypeProposal, Title: "a proposal",
	})
	require.NoError(t, err)

	_, err = f.tickets.AddReview(ctx, "demo.git", ticket.Number, "bob", domain.ScoreApproved)
	assert.ErrorIs(t, err, domain.ErrNoPatchset)
}

func TestAddReview_SupersedesPreviousScore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{
		Type: domain.TypeProposal, Title: "a proposal",
	})
	require.NoError(t, err)
	_, err = f.tickets.UploadPatchset(ctx, "demo.git", ticket.Number, "alice", PatchsetInput{
		Base: "base0", Tip: "tip11",
	})
	require.NoError(t, err)

	_, err = f.tickets.AddReview(ctx, "demo.git", ticket.Number, "bob", domain.ScoreNeedsImprovement)
	require.NoError(t, err)
	updated, err := f.tickets.AddReview(ctx, "demo.git", ticket.Number, "bob", domain.ScoreApproved)
	require.NoError(t, err)

	reviews := updated.ActiveReviews(1)
	require.Len(t, reviews, 1)
	assert.Equal(t, domain.ScoreApproved, reviews[0].Score)
}

func TestRebuildIndex(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{Title: "one"})
	require.NoError(t, err)
	_, err = f.tickets.CreateTicket(ctx, "demo.git", "alice", TicketCreateInput{Title: "two"})
	require.NoError(t, err)

	// start from an empty index and rebuild from the log
	f.tickets.indexer = index.NewMemoryIndexer()
	require.NoError(t, f.tickets.RebuildIndex(ctx, "demo.git"))

	listed, err := f.tickets.ListTickets(ctx, "demo.git", index.Filter{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestRebuildAllIndexes_CoversEveryRepository(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.tickets.CreateTicket(ctx, "alpha.git", "alice", TicketCreateInput{Title: "one"})
	require.NoError(t, err)
	_, err = f.tickets.CreateTicket(ctx, "beta.git", "bob", TicketCreateInput{Title: "two"})
	require.NoError(t, err)

	// an empty index is what a fresh process starts with
	f.tickets.indexer = index.NewMemoryIndexer()
	require.NoError(t, f.tickets.RebuildAllIndexes(ctx))

	for _, repo := range []string{"alpha.git", "beta.git"} {
		listed, err := f.tickets.ListTickets(ctx, repo, index.Filter{})
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	}
}
