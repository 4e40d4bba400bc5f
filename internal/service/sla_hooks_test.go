package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

func TestSLAHooks_IgnoreUnexpectedPayloads(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	hooks := NewSLAHooks(f.svc, zap.NewNop())

	if err := hooks.onTicketCreated(context.Background(), events.Event{TicketID: "t-1", Payload: "garbage"}); err != nil {
		t.Errorf("onTicketCreated returned %v, want nil", err)
	}
	if err := hooks.onMessageAdded(context.Background(), events.Event{TicketID: "t-1", Payload: 42}); err != nil {
		t.Errorf("onMessageAdded returned %v, want nil", err)
	}
	ticket, _ := f.tickets.Snapshot("t-1")
	if ticket.SLA.Tracked() {
		t.Error("malformed event initialized SLA")
	}
}

func TestSLAHooks_StatusChangeOnMissingTicketIsSwallowed(t *testing.T) {
	f := newSLAFixture(t)
	hooks := NewSLAHooks(f.svc, zap.NewNop())

	err := hooks.onStatusChanged(context.Background(), events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: "missing",
		Payload:  events.TicketStatusChangedPayload{OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusResolved},
	})
	if err != nil {
		t.Errorf("onStatusChanged returned %v, want nil", err)
	}
}

func TestSLAHooks_UserMessageDoesNotCountAsResponse(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)
	hooks := NewSLAHooks(f.svc, zap.NewNop())

	f.now = baseTime.Add(5 * time.Minute)
	_ = hooks.onMessageAdded(context.Background(), events.Event{
		TicketID: "t-1",
		Payload: events.TicketMessageAddedPayload{
			AuthorType:  domain.AuthorTypeUser,
			MessageType: domain.MessageTypePublicReply,
		},
	})
	ticket, _ := f.tickets.Snapshot("t-1")
	if ticket.SLA.FirstResponseAt != nil {
		t.Error("user message recorded as first response")
	}
}
