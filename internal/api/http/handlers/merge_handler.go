package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/forge-tickets/internal/api/dto"
	"github.com/spec-kit/forge-tickets/internal/auth"
	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/service"
	"github.com/spec-kit/forge-tickets/internal/worker"
	apperrors "github.com/spec-kit/forge-tickets/pkg/util"
)

// MergeHandler exposes merge evaluation and execution.
type MergeHandler struct {
	merges *service.MergeService
	queue  *worker.MergeWorker
	policy domain.ReviewPolicy
}

// NewMergeHandler constructs handler.
func NewMergeHandler(merges *service.MergeService, queue *worker.MergeWorker, policy domain.ReviewPolicy) *MergeHandler {
	return &MergeHandler{merges: merges, queue: queue, policy: policy}
}

// Evaluate GET /repos/:repo/tickets/:number/merge.
func (h *MergeHandler) Evaluate(c *fiber.Ctx) error {
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	outcome, err := h.merges.Evaluate(c.UserContext(), repoParam(c), number, h.policy)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MergeEvaluationResponse{Outcome: string(outcome)}})
}

// Merge POST /repos/:repo/tickets/:number/merge. The merge runs on the
// worker pool; the request waits for its reply.
func (h *MergeHandler) Merge(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ExpectedTip == "" {
		return apperrors.NewValidationError("expected_tip required", nil)
	}

	reply, err := h.queue.Enqueue(c.UserContext(), worker.MergeRequest{
		Repository:  repoParam(c),
		Number:      number,
		ExpectedTip: req.ExpectedTip,
		MergedBy:    principal.Username,
		Policy:      h.policy,
	})
	if err != nil {
		return apperrors.NewConflict("merge queue is full, retry later", nil)
	}

	var result worker.MergeReply
	select {
	case result = <-reply:
	case <-c.UserContext().Done():
		// the pool may have shut down with the job still queued
		return apperrors.NewConflict("merge not processed, retry later", nil)
	}
	if result.Err != nil {
		return result.Err
	}
	return c.JSON(fiber.Map{"data": dto.MergeResultResponse{
		Outcome:   string(result.Result.Outcome),
		MergeSha:  result.Result.MergeSha,
		Reason:    result.Result.Reason,
		Cancelled: result.Result.Cancelled,
	}})
}
