package service

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment. The assignee is the grouping
// key of the per-agent compliance report.
type AssignmentService struct {
	tickets    repository.TicketRepository
	staff      repository.StaffRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	now        Clock
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo  repository.TicketRepository
	StaffRepo   repository.StaffRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Clock       Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		staff:      deps.StaffRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		now:        clockOrNow(deps.Clock),
	}
}

// SelfAssignTicket assigns the ticket to the calling staff member.
func (s *AssignmentService) SelfAssignTicket(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.loadTicket(ctx, staff, ticketID)
	if err != nil {
		return nil, err
	}
	return s.assign(ctx, staff.ID, ticket, staff)
}

// AssignTicketToStaff assigns the ticket to another member (TEAM_LEAD/ADMIN).
// Team leads may only pick assignees from the ticket's department.
func (s *AssignmentService) AssignTicketToStaff(ctx context.Context, actor *domain.StaffMember, ticketID, assigneeStaffID string) (*domain.Ticket, error) {
	if err := requireAssignPriv(actor); err != nil {
		return nil, err
	}
	assignee, err := s.staff.GetByID(ctx, assigneeStaffID)
	if err != nil {
		return nil, notFoundOr(err, "staff", map[string]any{"staff_id": assigneeStaffID})
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"staff_id": assigneeStaffID})
	}

	ticket, err := s.loadTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !assignee.InDepartment(ticket.DepartmentID) {
		return nil, apperrors.NewForbidden("assignee outside ticket department")
	}
	return s.assign(ctx, actor.ID, ticket, assignee)
}

func (s *AssignmentService) loadTicket(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewConflict("ticket already resolved", map[string]any{"status": ticket.Status})
	}
	return ticket, nil
}

func (s *AssignmentService) assign(ctx context.Context, actorID string, ticket *domain.Ticket, assignee *domain.StaffMember) (*domain.Ticket, error) {
	oldAssignee := ticket.AssigneeID
	if oldAssignee != nil && *oldAssignee == assignee.ID {
		return ticket, nil
	}
	ticket.AssigneeID = &assignee.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if err := s.history.Create(ctx, &domain.TicketHistory{
		TicketID:      ticket.ID,
		ChangedByType: domain.AuthorTypeStaff,
		ChangedByID:   &actorID,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue:      map[string]any{"assignee_staff_id": oldAssignee},
		NewValue:      map[string]any{"assignee_staff_id": assignee.ID},
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    staffActor(actorID),
		Payload: events.TicketAssignedPayload{
			OldAssigneeID: oldAssignee,
			AssigneeID:    assignee.ID,
		},
	})
	return ticket, nil
}

func requireAssignPriv(staff *domain.StaffMember) error {
	if staff == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	if staff.Role != domain.StaffRoleTeamLead && staff.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	return nil
}
