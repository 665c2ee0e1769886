package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/forge-tickets/internal/api/dto"
	"github.com/spec-kit/forge-tickets/internal/auth"
	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/service"
	apperrors "github.com/spec-kit/forge-tickets/pkg/util"
)

// MilestonesHandler manages milestone endpoints.
type MilestonesHandler struct {
	service *service.MilestoneService
}

// NewMilestonesHandler constructs handler.
func NewMilestonesHandler(milestoneService *service.MilestoneService) *MilestonesHandler {
	return &MilestonesHandler{service: milestoneService}
}

// Create POST /repos/:repo/milestones.
func (h *MilestonesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	milestone, err := h.service.Create(c.UserContext(), repoParam(c), service.MilestoneInput{
		Name:  req.Name,
		Color: req.Color,
		Due:   req.Due,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": milestoneResponse(milestone)})
}

// List GET /repos/:repo/milestones.
func (h *MilestonesHandler) List(c *fiber.Ctx) error {
	milestones, err := h.service.List(c.UserContext(), repoParam(c))
	if err != nil {
		return err
	}
	items := make([]dto.MilestoneResponse, 0, len(milestones))
	for i := range milestones {
		items = append(items, milestoneResponse(&milestones[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /repos/:repo/milestones/:name.
func (h *MilestonesHandler) Get(c *fiber.Ctx) error {
	milestone, err := h.service.Get(c.UserContext(), repoParam(c), nameParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": milestoneResponse(milestone)})
}

// Edit PATCH /repos/:repo/milestones/:name.
func (h *MilestonesHandler) Edit(c *fiber.Ctx) error {
	var req dto.EditMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	milestone, err := h.service.Edit(c.UserContext(), repoParam(c), nameParam(c), service.MilestoneInput{
		Color: req.Color,
		Due:   req.Due,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": milestoneResponse(milestone)})
}

// Rename POST /repos/:repo/milestones/:name/rename.
func (h *MilestonesHandler) Rename(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.RenameMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	milestone, err := h.service.Rename(c.UserContext(), repoParam(c), nameParam(c), req.Name, principal.Username)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": milestoneResponse(milestone)})
}

// Close POST /repos/:repo/milestones/:name/close.
func (h *MilestonesHandler) Close(c *fiber.Ctx) error {
	milestone, err := h.service.Close(c.UserContext(), repoParam(c), nameParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": milestoneResponse(milestone)})
}

// Reopen POST /repos/:repo/milestones/:name/reopen.
func (h *MilestonesHandler) Reopen(c *fiber.Ctx) error {
	milestone, err := h.service.Reopen(c.UserContext(), repoParam(c), nameParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": milestoneResponse(milestone)})
}

// Delete DELETE /repos/:repo/milestones/:name.
func (h *MilestonesHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.service.Delete(c.UserContext(), repoParam(c), nameParam(c), principal.Username); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func nameParam(c *fiber.Ctx) string {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return c.Params("name")
	}
	return name
}

func milestoneResponse(m *domain.Milestone) dto.MilestoneResponse {
	return dto.MilestoneResponse{
		Repository:    m.Repository,
		Name:          m.Name,
		Status:        m.Status,
		Color:         m.Color,
		Due:           m.Due,
		CreatedAt:     m.CreatedAt,
		OpenTickets:   m.OpenTickets,
		ClosedTickets: m.ClosedTickets,
	}
}
