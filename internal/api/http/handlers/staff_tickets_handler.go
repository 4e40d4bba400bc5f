package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// StaffTicketsHandler handles the staff ticket workflow and per-ticket SLA views.
type StaffTicketsHandler struct {
	tickets *service.TicketService
	assign  *service.AssignmentService
	sla     *service.SLAService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService, assignService *service.AssignmentService, slaService *service.SLAService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService, assign: assignService, sla: slaService}
}

// ListStaffTickets GET /staff/tickets.
func (h *StaffTicketsHandler) ListStaffTickets(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseStaffTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListStaffTickets(c.UserContext(), staff, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// GetStaffTicket GET /staff/tickets/:id.
func (h *StaffTicketsHandler) GetStaffTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, msgs, err := h.tickets.GetTicketForStaff(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	history, err := h.tickets.ListHistoryForStaff(c.UserContext(), staff, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs, history)})
}

// AddStaffMessage POST /staff/tickets/:id/messages.
func (h *StaffTicketsHandler) AddStaffMessage(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.tickets.AddStaffMessage(c.UserContext(), staff, c.Params("id"), req.MessageType, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketMessageResponse(msg)})
}

// UpdateStatus PATCH /staff/tickets/:id/status.
func (h *StaffTicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !req.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": req.Status})
	}
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), staff, c.Params("id"), req.Status, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign POST /staff/tickets/:id/assign. An empty assignee self-assigns.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	ticketID := c.Params("id")
	if req.AssigneeStaffID == "" || req.AssigneeStaffID == staff.ID {
		ticket, err := h.assign.SelfAssignTicket(c.UserContext(), staff, ticketID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
	}
	ticket, err := h.assign.AssignTicketToStaff(c.UserContext(), staff, ticketID, req.AssigneeStaffID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// History GET /staff/tickets/:id/history.
func (h *StaffTicketsHandler) History(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.ListHistoryForStaff(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// TicketSLA GET /staff/tickets/:id/sla. Untracked tickets render data: null.
func (h *StaffTicketsHandler) TicketSLA(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.AuthorizeStaff(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	metrics, err := h.sla.GetTicketSLAMetrics(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	if metrics == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": dto.TicketSLAResponse{
		TicketID:                metrics.TicketID,
		PolicyID:                metrics.PolicyID,
		Priority:                metrics.Priority,
		Status:                  metrics.Status,
		State:                   metrics.State,
		ResponseDue:             metrics.ResponseDue,
		ResolutionDue:           metrics.ResolutionDue,
		FirstResponseAt:         metrics.FirstResponseAt,
		ResponseBreached:        metrics.ResponseBreached,
		ResolutionBreached:      metrics.ResolutionBreached,
		ResponseTimeHours:       metrics.ResponseTimeHours,
		ResponseRemainingMins:   metrics.ResponseRemainingMins,
		ResolutionRemainingMins: metrics.ResolutionRemainingMins,
	}})
}

// CheckTicketBreaches POST /staff/tickets/:id/sla/check.
func (h *StaffTicketsHandler) CheckTicketBreaches(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.AuthorizeStaff(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	flags, err := h.sla.CheckBreaches(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.BreachCheckResponse{
		TicketID:           ticket.ID,
		ResponseBreached:   flags.ResponseBreached,
		ResolutionBreached: flags.ResolutionBreached,
	}})
}

func parseStaffTicketFilter(c *fiber.Ctx) (service.TicketStaffFilter, error) {
	filter := service.TicketStaffFilter{
		BreachedOnly: c.QueryBool("breached"),
	}
	if deptID := c.Query("department_id"); deptID != "" {
		filter.DepartmentID = &deptID
	}
	if assignee := c.Query("assignee_staff_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return filter, err
	}
	filter.Statuses = statuses
	priorities, err := parsePriorities(c.Query("priority"))
	if err != nil {
		return filter, err
	}
	filter.Priorities = priorities
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))

	page, pageSize := pagination(c)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}
