package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
)

// Publisher delivers a serialized event to an external channel.
// persistence.Redis satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// NotificationService fans domain events out to the notification channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  Publisher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, publisher Publisher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.forward)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.forward)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.forward)
	n.dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
}

func (n *NotificationService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	// internal notes stay inside the helpdesk
	if payload, ok := event.Payload.(events.TicketMessageAddedPayload); ok && payload.MessageType.Internal() {
		return nil
	}
	return n.forward(ctx, event)
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	n.logger.Info("sla breach notification",
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload),
	)
	return n.forward(ctx, event)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if n.publisher == nil || strings.TrimSpace(n.cfg.Channel) == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if err := n.publisher.Publish(ctx, n.cfg.Channel, body); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	n.logger.Debug("notification published",
		zap.String("channel", n.cfg.Channel),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
	)
	return nil
}
