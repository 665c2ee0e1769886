package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/forge-tickets/internal/api/dto"
	"github.com/spec-kit/forge-tickets/internal/auth"
	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/service"
	apperrors "github.com/spec-kit/forge-tickets/pkg/util"
)

// PatchsetsHandler manages patchset upload and review endpoints.
type PatchsetsHandler struct {
	service *service.TicketService
}

// NewPatchsetsHandler constructs handler.
func NewPatchsetsHandler(ticketService *service.TicketService) *PatchsetsHandler {
	return &PatchsetsHandler{service: ticketService}
}

// UploadPatchset POST /repos/:repo/tickets/:number/patchsets.
func (h *PatchsetsHandler) UploadPatchset(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.PatchsetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Tip == "" || req.Base == "" {
		return apperrors.NewValidationError("base and tip required", nil)
	}

	input := service.PatchsetInput{
		Type:   req.Type,
		Base:   req.Base,
		Tip:    req.Tip,
		Parent: req.Parent,
	}
	ticket, err := h.service.UploadPatchset(c.UserContext(), repoParam(c), number, principal.Username, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AddReview POST /repos/:repo/tickets/:number/reviews.
func (h *PatchsetsHandler) AddReview(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	score, ok := domain.ParseScore(req.Score)
	if !ok {
		return apperrors.NewValidationError("unknown review score", map[string]any{"score": req.Score})
	}
	ticket, err := h.service.AddReview(c.UserContext(), repoParam(c), number, principal.Username, score)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}
