package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/service"
)

// ErrQueueFull is returned when the merge queue cannot accept more work.
var ErrQueueFull = errors.New("merge queue is full")

// ErrShuttingDown is the reply for jobs still queued when the pool stops.
var ErrShuttingDown = errors.New("merge worker shutting down")

// MergeRequest asks the worker to merge a ticket's current patchset.
type MergeRequest struct {
	Repository  string
	Number      int64
	ExpectedTip string
	MergedBy    string
	Policy      domain.ReviewPolicy
}

// MergeReply carries the merge result back to the enqueuer.
type MergeReply struct {
	Result service.MergeResult
	Err    error
}

type mergeJob struct {
	ctx     context.Context
	request MergeRequest
	reply   chan MergeReply
}

// MergeWorker funnels merge requests through a bounded queue so that
// backend merges are executed by a fixed pool instead of per-request
// goroutines.
type MergeWorker struct {
	merges  *service.MergeService
	logger  *zap.Logger
	jobs    chan mergeJob
	workers int
	wg      sync.WaitGroup
}

// NewMergeWorker constructs a worker with the given queue size and pool size.
func NewMergeWorker(merges *service.MergeService, logger *zap.Logger, queueSize, workers int) *MergeWorker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeWorker{
		merges:  merges,
		logger:  logger,
		jobs:    make(chan mergeJob, queueSize),
		workers: workers,
	}
}

// Start launches the pool. Workers exit when ctx is done.
func (w *MergeWorker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Wait blocks until all workers have exited.
func (w *MergeWorker) Wait() {
	w.wg.Wait()
}

// Enqueue queues a merge and returns a channel that receives exactly one
// reply. ErrQueueFull is returned when the queue is saturated.
func (w *MergeWorker) Enqueue(ctx context.Context, request MergeRequest) (<-chan MergeReply, error) {
	job := mergeJob{ctx: ctx, request: request, reply: make(chan MergeReply, 1)}
	select {
	case w.jobs <- job:
		return job.reply, nil
	default:
		return nil, ErrQueueFull
	}
}

func (w *MergeWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			w.drain()
			return
		}
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.jobs:
			result, err := w.merges.Merge(job.ctx, job.request.Repository, job.request.Number,
				job.request.ExpectedTip, job.request.MergedBy, job.request.Policy)
			if err != nil {
				w.logger.Error("merge failed",
					zap.String("repository", job.request.Repository),
					zap.Int64("ticket", job.request.Number),
					zap.Error(err))
			} else {
				w.logger.Info("merge processed",
					zap.String("repository", job.request.Repository),
					zap.Int64("ticket", job.request.Number),
					zap.String("outcome", string(result.Outcome)))
			}
			job.reply <- MergeReply{Result: result, Err: err}
		}
	}
}

// drain answers every job still queued so no enqueuer waits on a reply
// that will never come.
func (w *MergeWorker) drain() {
	for {
		select {
		case job := <-w.jobs:
			job.reply <- MergeReply{Err: ErrShuttingDown}
		default:
			return
		}
	}
}
