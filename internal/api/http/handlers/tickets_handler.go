package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/forge-tickets/internal/api/dto"
	"github.com/spec-kit/forge-tickets/internal/auth"
	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/index"
	"github.com/spec-kit/forge-tickets/internal/service"
	apperrors "github.com/spec-kit/forge-tickets/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /repos/:repo/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title required", nil)
	}

	input := service.TicketCreateInput{
		Type:    req.Type,
		Title:   req.Title,
		Body:    req.Body,
		Topic:   req.Topic,
		MergeTo: req.MergeTo,
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), repoParam(c), principal.Username, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /repos/:repo/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.service.ListTickets(c.UserContext(), repoParam(c), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /repos/:repo/tickets/:number.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), repoParam(c), number)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// EditTicket PATCH /repos/:repo/tickets/:number.
func (h *TicketsHandler) EditTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.EditTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.FieldEditInput{
		Title:       req.Title,
		Body:        req.Body,
		Topic:       req.Topic,
		Type:        req.Type,
		Status:      req.Status,
		Responsible: req.Responsible,
		Milestone:   req.Milestone,
		MergeTo:     req.MergeTo,
	}
	ticket, err := h.service.EditFields(c.UserContext(), repoParam(c), number, principal.Username, input, principal.Role.Privileged())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AddComment POST /repos/:repo/tickets/:number/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperrors.NewValidationError("text required", nil)
	}
	ticket, err := h.service.AddComment(c.UserContext(), repoParam(c), number, principal.Username, req.Text, domain.CommentSourceUI, req.ReplyTo)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// EditComment PATCH /repos/:repo/tickets/:number/comments/:comment.
func (h *TicketsHandler) EditComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.EditComment(c.UserContext(), repoParam(c), number, principal.Username, c.Params("comment"), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// DeleteComment DELETE /repos/:repo/tickets/:number/comments/:comment.
func (h *TicketsHandler) DeleteComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.DeleteComment(c.UserContext(), repoParam(c), number, principal.Username, c.Params("comment"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Watch PUT /repos/:repo/tickets/:number/watch.
func (h *TicketsHandler) Watch(c *fiber.Ctx) error {
	return h.selfToggle(c, h.service.Watch)
}

// Unwatch DELETE /repos/:repo/tickets/:number/watch.
func (h *TicketsHandler) Unwatch(c *fiber.Ctx) error {
	return h.selfToggle(c, h.service.Unwatch)
}

// Vote PUT /repos/:repo/tickets/:number/vote.
func (h *TicketsHandler) Vote(c *fiber.Ctx) error {
	return h.selfToggle(c, h.service.Vote)
}

// Unvote DELETE /repos/:repo/tickets/:number/vote.
func (h *TicketsHandler) Unvote(c *fiber.Ctx) error {
	return h.selfToggle(c, h.service.Unvote)
}

// AddLabels PUT /repos/:repo/tickets/:number/labels.
func (h *TicketsHandler) AddLabels(c *fiber.Ctx) error {
	return h.labelChange(c, h.service.AddLabels)
}

// RemoveLabels DELETE /repos/:repo/tickets/:number/labels.
func (h *TicketsHandler) RemoveLabels(c *fiber.Ctx) error {
	return h.labelChange(c, h.service.RemoveLabels)
}

type selfToggleFn func(ctx context.Context, repo string, number int64, username string) (*domain.Ticket, error)

func (h *TicketsHandler) selfToggle(c *fiber.Ctx, fn selfToggleFn) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	ticket, err := fn(c.UserContext(), repoParam(c), number, principal.Username)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

type labelChangeFn func(ctx context.Context, repo string, number int64, author string, labels ...string) (*domain.Ticket, error)

func (h *TicketsHandler) labelChange(c *fiber.Ctx, fn labelChangeFn) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.LabelsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Labels) == 0 {
		return apperrors.NewValidationError("labels required", nil)
	}
	ticket, err := fn(c.UserContext(), repoParam(c), number, principal.Username, req.Labels...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

func repoParam(c *fiber.Ctx) string {
	repo, err := url.PathUnescape(c.Params("repo"))
	if err != nil {
		return c.Params("repo")
	}
	return repo
}

func numberParam(c *fiber.Ctx) (int64, error) {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || number <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket number", nil)
	}
	return number, nil
}

func parseTicketQuery(c *fiber.Ctx) index.Filter {
	filter := index.Filter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if typeStr := c.Query("type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			filter.Types = append(filter.Types, domain.TicketType(strings.TrimSpace(part)))
		}
	}
	if milestone := c.Query("milestone"); milestone != "" {
		filter.Milestone = &milestone
	}
	if responsible := c.Query("responsible"); responsible != "" {
		filter.Responsible = &responsible
	}
	if label := c.Query("label"); label != "" {
		filter.Label = &label
	}
	if openStr := c.Query("open"); openStr != "" {
		open := openStr == "true" || openStr == "1"
		filter.Open = &open
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		Repository:  ticket.Repository,
		Number:      ticket.Number,
		Type:        ticket.Type,
		Title:       ticket.Title,
		Topic:       ticket.Topic,
		Status:      ticket.Status,
		Responsible: ticket.Responsible,
		Milestone:   ticket.Milestone,
		Labels:      ticket.Labels(),
		Votes:       len(ticket.Voters()),
		CreatedAt:   ticket.CreatedAt,
		CreatedBy:   ticket.CreatedBy,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0)
	for _, change := range ticket.Comments() {
		if change.Comment.Deleted {
			continue
		}
		comments = append(comments, dto.CommentResponse{
			ID:      change.Comment.ID,
			Author:  change.Author,
			Text:    change.Comment.Text,
			ReplyTo: change.Comment.ReplyTo,
			Date:    change.Date,
		})
	}

	var reviews []domain.Review
	current := ticket.CurrentPatchset()
	if current != nil {
		reviews = ticket.ActiveReviews(current.Number)
	}

	return dto.TicketDetailResponse{
		TicketSummary:   ticketSummary(ticket),
		Body:            ticket.Body,
		MergeTo:         ticket.MergeTo,
		MergeSha:        ticket.MergeSha,
		Watchers:        ticket.Watchers(),
		Voters:          ticket.Voters(),
		Participants:    ticket.Participants(),
		Comments:        comments,
		Patchsets:       ticket.Patchsets(),
		CurrentPatchset: current,
		Reviews:         reviews,
	}
}
