package service

import (
	"context"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestAssignmentService_SelfAssign(t *testing.T) {
	f := newHelpdeskFixture(t)
	ticket := f.createCritical(t)

	got, err := f.assign.SelfAssignTicket(context.Background(), agent, ticket.ID)
	if err != nil {
		t.Fatalf("SelfAssignTicket failed: %v", err)
	}
	if got.AssigneeID == nil || *got.AssigneeID != agent.ID {
		t.Errorf("AssigneeID = %v, want %q", got.AssigneeID, agent.ID)
	}
	if n := len(f.history.OfType(domain.ChangeTypeAssignee)); n != 1 {
		t.Errorf("assignee history entries = %d, want 1", n)
	}
	assigned := f.events.ofType(events.EventTicketAssigned)
	if len(assigned) != 1 {
		t.Fatalf("ticket_assigned events = %d, want 1", len(assigned))
	}
	if p := assigned[0].Payload.(events.TicketAssignedPayload); p.AssigneeID != agent.ID || p.OldAssigneeID != nil {
		t.Errorf("payload = %+v", p)
	}

	// assigning the current assignee again is a no-op
	if _, err := f.assign.SelfAssignTicket(context.Background(), agent, ticket.ID); err != nil {
		t.Fatalf("second SelfAssignTicket failed: %v", err)
	}
	if n := len(f.events.ofType(events.EventTicketAssigned)); n != 1 {
		t.Errorf("ticket_assigned events after repeat = %d, want 1", n)
	}
}

func TestAssignmentService_AssignToStaff(t *testing.T) {
	f := newHelpdeskFixture(t)
	ctx := context.Background()
	ticket := f.createCritical(t)

	tests := []struct {
		name     string
		actor    *domain.StaffMember
		assignee string
		code     string
	}{
		{"agent cannot assign others", agent, "staff-lead", apperrors.CodeForbidden},
		{"unknown assignee", lead, "staff-404", apperrors.CodeNotFound},
		{"inactive assignee", lead, "staff-gone", apperrors.CodeConflict},
		{"lead cannot reach outside department", lead, "staff-other", apperrors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.assign.AssignTicketToStaff(ctx, tt.actor, ticket.ID, tt.assignee); !apperrors.HasCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}

	got, err := f.assign.AssignTicketToStaff(ctx, lead, ticket.ID, agent.ID)
	if err != nil {
		t.Fatalf("AssignTicketToStaff failed: %v", err)
	}
	if got.AssigneeID == nil || *got.AssigneeID != agent.ID {
		t.Errorf("AssigneeID = %v, want %q", got.AssigneeID, agent.ID)
	}

	got, err = f.assign.AssignTicketToStaff(ctx, admin, ticket.ID, "staff-other")
	if err != nil {
		t.Fatalf("admin cross-department assign failed: %v", err)
	}
	if *got.AssigneeID != "staff-other" {
		t.Errorf("AssigneeID = %q, want staff-other", *got.AssigneeID)
	}
}

func TestAssignmentService_TerminalTicket(t *testing.T) {
	f := newHelpdeskFixture(t)
	ctx := context.Background()
	ticket := f.createCritical(t)
	if _, err := f.tickets.UpdateStatus(ctx, agent, ticket.ID, domain.TicketStatusResolved, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if _, err := f.assign.SelfAssignTicket(ctx, agent, ticket.ID); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Errorf("err = %v, want CONFLICT", err)
	}
}
