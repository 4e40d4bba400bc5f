package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

// SLAHooks connects ticket lifecycle events to the SLA service. Every handler
// logs its own failures and returns nil so SLA tracking never fails a ticket
// operation.
type SLAHooks struct {
	sla    *SLAService
	logger *zap.Logger
}

// NewSLAHooks builds the hook set.
func NewSLAHooks(sla *SLAService, logger *zap.Logger) *SLAHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAHooks{sla: sla, logger: logger}
}

// Register subscribes the hooks to dispatcher.
func (h *SLAHooks) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, h.onTicketCreated)
	dispatcher.Subscribe(events.EventTicketMessageAdded, h.onMessageAdded)
	dispatcher.Subscribe(events.EventTicketStatusChanged, h.onStatusChanged)
}

func (h *SLAHooks) onTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		h.logger.Warn("unexpected ticket_created payload", zap.String("ticket_id", event.TicketID))
		return nil
	}
	h.sla.InitializeSLA(ctx, event.TicketID, payload.Priority)
	return nil
}

func (h *SLAHooks) onMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		h.logger.Warn("unexpected ticket_message_added payload", zap.String("ticket_id", event.TicketID))
		return nil
	}
	msg := domain.TicketMessage{AuthorType: payload.AuthorType, MessageType: payload.MessageType}
	if !msg.CountsAsAgentResponse() {
		return nil
	}
	h.sla.RecordFirstResponse(ctx, event.TicketID)
	return nil
}

func (h *SLAHooks) onStatusChanged(ctx context.Context, event events.Event) error {
	if _, err := h.sla.CheckBreaches(ctx, event.TicketID); err != nil {
		h.logger.Warn("breach check after status change failed",
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}
