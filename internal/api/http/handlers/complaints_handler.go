package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/service"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// ComplaintsHandler exposes the complaint lifecycle over HTTP.
type ComplaintsHandler struct {
	service *service.TicketService
}

// NewComplaintsHandler constructs handler.
func NewComplaintsHandler(ticketService *service.TicketService) *ComplaintsHandler {
	return &ComplaintsHandler{service: ticketService}
}

// Create POST /complaints.
func (h *ComplaintsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateComplaintRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title required", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), service.CreateInput{
		OwnerID:     principal.UserID,
		Priority:    req.Priority,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		UnitID:      req.UnitID,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Get GET /complaints/:id.
func (h *ComplaintsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.visible(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// History GET /complaints/:id/history.
func (h *ComplaintsHandler) History(c *fiber.Ctx) error {
	ticket, err := h.visible(c)
	if err != nil {
		return err
	}
	records, err := h.service.History(c.UserContext(), ticket.ID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": dto.FromHistory(records)})
}

// Messages GET /complaints/:id/messages.
func (h *ComplaintsHandler) Messages(c *fiber.Ctx) error {
	ticket, err := h.visible(c)
	if err != nil {
		return err
	}
	msgs, err := h.service.ListMessages(c.UserContext(), ticket.ID)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, dto.FromMessage(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Transition POST /complaints/:id/transitions.
func (h *ComplaintsHandler) Transition(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	to, err := domain.ParseTicketStatus(req.ToStatus)
	if err != nil {
		return apperrors.NewValidationError("unknown to_status", map[string]any{"to_status": req.ToStatus})
	}
	ticket, err := h.service.RequestTransition(c.UserContext(), service.TransitionRequest{
		TicketID:   c.Params("id"),
		ToStatus:   to,
		ActorID:    principal.UserID,
		ActorRole:  principal.Role,
		Reason:     req.Reason,
		AssigneeID: req.AssigneeID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Assign POST /complaints/:id/assign.
func (h *ComplaintsHandler) Assign(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.HandlerID == "" {
		return apperrors.NewValidationError("handler_id required", nil)
	}
	ticket, err := h.service.Assign(c.UserContext(), c.Params("id"), req.HandlerID, principal.UserID, principal.Role, req.Reason)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// AddComment POST /complaints/:id/comments.
func (h *ComplaintsHandler) AddComment(c *fiber.Ctx) error {
	return h.addMessage(c, h.service.AddComment)
}

// AddWorkUpdate POST /complaints/:id/work-updates.
func (h *ComplaintsHandler) AddWorkUpdate(c *fiber.Ctx) error {
	return h.addMessage(c, h.service.AddWorkUpdate)
}

// Overdue GET /complaints/overdue.
func (h *ComplaintsHandler) Overdue(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	tickets, err := h.service.ListOverdue(c.UserContext(), limit)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.ComplaintResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

type messageFunc func(ctx context.Context, input service.MessageInput) (*domain.TicketMessage, error)

func (h *ComplaintsHandler) addMessage(c *fiber.Ctx, post messageFunc) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := post(c.UserContext(), service.MessageInput{
		TicketID:   c.Params("id"),
		AuthorID:   principal.UserID,
		AuthorRole: principal.Role,
		Body:       req.Body,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromMessage(msg)})
}

// visible loads the complaint and checks that the caller may read it.
func (h *ComplaintsHandler) visible(c *fiber.Ctx) (*domain.Ticket, error) {
	principal, err := requirePrincipal(c)
	if err != nil {
		return nil, err
	}
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, mapServiceError(err)
	}
	if !service.CanView(ticket, principal.UserID, principal.Role) {
		return nil, apperrors.NewForbidden("complaint not accessible")
	}
	return ticket, nil
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrAccessDenied):
		return apperrors.NewForbidden(err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return apperrors.NewValidationError(err.Error(), nil)
	default:
		return err
	}
}
