package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows. SLA bookkeeping happens in
// SLAHooks, driven by the events published here.
type TicketService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	departments repository.DepartmentRepository
	history     repository.TicketHistoryRepository
	dispatcher  events.Dispatcher
	now         Clock
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	MessageRepo    repository.TicketMessageRepository
	DepartmentRepo repository.DepartmentRepository
	HistoryRepo    repository.TicketHistoryRepository
	Dispatcher     events.Dispatcher
	Clock          Clock
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	DepartmentID string
	Title        string
	Description  string
	Priority     domain.TicketPriority
	Tags         []string
}

// TicketUserFilter describes end-user listing filters.
type TicketUserFilter struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketStaffFilter describes staff listing filters.
type TicketStaffFilter struct {
	DepartmentID *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	BreachedOnly bool
	Limit        int
	Offset       int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		departments: deps.DepartmentRepo,
		history:     deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		now:         clockOrNow(deps.Clock),
	}
}

// CreateTicket creates a ticket for a user and announces it; the SLA hook
// initializes deadlines from the ticket_created event.
func (s *TicketService) CreateTicket(ctx context.Context, userID string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"title": "required"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}

	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		return nil, notFoundOr(err, "department", map[string]any{"department_id": input.DepartmentID})
	}
	if !dept.IsActive {
		return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
	}

	ticket := &domain.Ticket{
		ExternalKey:  generateTicketKey(),
		RequesterID:  userID,
		DepartmentID: dept.ID,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		Tags:         input.Tags,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    userActor(userID),
		Payload: events.TicketCreatedPayload{
			DepartmentID: ticket.DepartmentID,
			Priority:     ticket.Priority,
			Title:        ticket.Title,
		},
	})
	return s.reload(ctx, ticket)
}

// ListUserTickets returns paginated tickets for a requester.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, filter TicketUserFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		RequesterID: &userID,
		Statuses:    filter.Statuses,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	return tickets, apperrors.MapError(err)
}

// GetTicketForUser fetches a ticket and its public thread, ensuring ownership.
func (s *TicketService) GetTicketForUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.loadForUser(ctx, userID, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID, false)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// ListStaffTickets returns tickets visible to staff. Non-admins are pinned to
// their own department.
func (s *TicketService) ListStaffTickets(ctx context.Context, staff *domain.StaffMember, filter TicketStaffFilter) ([]domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	repoFilter := repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		AssigneeID:   filter.AssigneeID,
		Statuses:     filter.Statuses,
		Priorities:   filter.Priorities,
		SearchTerm:   filter.SearchTerm,
		CreatedFrom:  filter.CreatedFrom,
		CreatedTo:    filter.CreatedTo,
		BreachedOnly: filter.BreachedOnly,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	if !staff.IsAdmin() {
		repoFilter.DepartmentID = staff.DepartmentID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	return tickets, apperrors.MapError(err)
}

// GetTicketForStaff fetches a ticket with the full thread, including internal notes.
func (s *TicketService) GetTicketForStaff(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.loadForStaff(ctx, staff, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID, true)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, msgs, nil
}

// AddUserMessage appends a public reply from the requester.
func (s *TicketService) AddUserMessage(ctx context.Context, userID, ticketID, body string) (*domain.TicketMessage, error) {
	ticket, err := s.loadForUser(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		AuthorType:  domain.AuthorTypeUser,
		AuthorID:    &userID,
		MessageType: domain.MessageTypePublicReply,
		Body:        strings.TrimSpace(body),
	}
	return s.addMessage(ctx, ticket, msg, userActor(userID))
}

// AddStaffMessage appends a reply or internal note; the SLA hook treats it as
// the first agent response if none was recorded yet.
func (s *TicketService) AddStaffMessage(ctx context.Context, staff *domain.StaffMember, ticketID string, messageType domain.TicketMessageType, body string) (*domain.TicketMessage, error) {
	ticket, err := s.loadForStaff(ctx, staff, ticketID)
	if err != nil {
		return nil, err
	}
	if messageType == "" {
		messageType = domain.MessageTypePublicReply
	}
	if messageType != domain.MessageTypePublicReply && messageType != domain.MessageTypeInternalNote {
		return nil, apperrors.NewValidationError("invalid message type", map[string]any{"message_type": messageType})
	}
	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		AuthorType:  domain.AuthorTypeStaff,
		AuthorID:    &staff.ID,
		MessageType: messageType,
		Body:        strings.TrimSpace(body),
	}
	return s.addMessage(ctx, ticket, msg, staffActor(staff.ID))
}

func (s *TicketService) addMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, actor events.Actor) (*domain.TicketMessage, error) {
	if msg.Body == "" {
		return nil, apperrors.NewValidationError("message body is required", map[string]any{"body": "required"})
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			MessageType: msg.MessageType,
			AuthorType:  msg.AuthorType,
			AuthorID:    msg.AuthorID,
			BodyPreview: stringPreview(msg.Body, 120),
			CreatedAt:   msg.CreatedAt,
		},
	})
	return msg, nil
}

// CloseTicketAsUser closes a resolved or pending ticket on behalf of its requester.
func (s *TicketService) CloseTicketAsUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadForUser(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusResolved && ticket.Status != domain.TicketStatusPendingUser {
		return nil, apperrors.NewConflict("ticket cannot be closed in current status", map[string]any{"status": ticket.Status})
	}
	return s.transition(ctx, ticket, domain.TicketStatusClosed, domain.AuthorTypeUser, userID, "user_closed")
}

// UpdateStatus moves a ticket along the staff workflow.
func (s *TicketService) UpdateStatus(ctx context.Context, staff *domain.StaffMember, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	ticket, err := s.loadForStaff(ctx, staff, ticketID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}
	return s.transition(ctx, ticket, newStatus, domain.AuthorTypeStaff, staff.ID, comment)
}

func (s *TicketService) transition(ctx context.Context, ticket *domain.Ticket, newStatus domain.TicketStatus, actorType domain.MessageAuthorType, actorID, comment string) (*domain.Ticket, error) {
	oldStatus := ticket.Status
	ticket.Status = newStatus
	if newStatus == domain.TicketStatusClosed {
		now := s.now()
		ticket.ClosedAt = &now
	} else {
		ticket.ClosedAt = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}

	if err := s.history.Create(ctx, &domain.TicketHistory{
		TicketID:      ticket.ID,
		ChangedByType: actorType,
		ChangedByID:   &actorID,
		ChangeType:    domain.ChangeTypeStatus,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": newStatus, "comment": comment},
	}); err != nil {
		return nil, apperrors.MapError(err)
	}

	actor := staffActor(actorID)
	if actorType == domain.AuthorTypeUser {
		actor = userActor(actorID)
	}
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Comment:   comment,
		},
	})
	return s.reload(ctx, ticket)
}

// ListHistoryForStaff returns the full audit trail, SLA entries included.
func (s *TicketService) ListHistoryForStaff(ctx context.Context, staff *domain.StaffMember, ticketID string) ([]domain.TicketHistory, error) {
	ticket, err := s.loadForStaff(ctx, staff, ticketID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticket.ID)
	return entries, apperrors.MapError(err)
}

// ListHistoryForUser returns status and assignee changes only.
func (s *TicketService) ListHistoryForUser(ctx context.Context, userID, ticketID string) ([]domain.TicketHistory, error) {
	ticket, err := s.loadForUser(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticket.ID, domain.ChangeTypeStatus, domain.ChangeTypeAssignee)
	return entries, apperrors.MapError(err)
}

// AuthorizeStaff loads the ticket if staff may see it.
func (s *TicketService) AuthorizeStaff(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	return s.loadForStaff(ctx, staff, ticketID)
}

func (s *TicketService) loadForUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.RequesterID != userID {
		// Hide other users' tickets entirely.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) loadForStaff(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// reload re-reads the ticket so callers see SLA columns written by hooks.
func (s *TicketService) reload(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	fresh, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return ticket, nil
	}
	return fresh, nil
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:        {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusInProgress:  {domain.TicketStatusPendingUser, domain.TicketStatusResolved},
	domain.TicketStatusPendingUser: {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusResolved:    {domain.TicketStatusClosed, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:      {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
