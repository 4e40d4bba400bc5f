package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

type recordingPublisher struct {
	channels []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestNotificationService_ForwardsBreaches(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	pub := &recordingPublisher{}
	NewNotificationService(dispatcher, pub, zap.NewNop(), config.NotificationConfig{Channel: "helpdesk:test"}).RegisterHandlers()

	_ = dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventSLABreached,
		TicketID: "t-1",
		Actor:    events.SystemActor,
		Payload:  events.SLABreachedPayload{Priority: domain.TicketPriorityHigh, ResponseBreached: true},
	})

	if len(pub.payloads) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.payloads))
	}
	if pub.channels[0] != "helpdesk:test" {
		t.Errorf("channel = %q, want %q", pub.channels[0], "helpdesk:test")
	}
	var decoded struct {
		Type     string `json:"type"`
		TicketID string `json:"ticket_id"`
		Payload  struct {
			ResponseBreached bool `json:"response_breached"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(pub.payloads[0], &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Type != "sla_breached" || decoded.TicketID != "t-1" || !decoded.Payload.ResponseBreached {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNotificationService_SkipsInternalNotes(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	pub := &recordingPublisher{}
	NewNotificationService(dispatcher, pub, nil, config.NotificationConfig{Channel: "c"}).RegisterHandlers()

	_ = dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventTicketMessageAdded,
		Payload: events.TicketMessageAddedPayload{MessageType: domain.MessageTypeInternalNote},
	})
	_ = dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventTicketMessageAdded,
		Payload: events.TicketMessageAddedPayload{MessageType: domain.MessageTypePublicReply},
	})

	if len(pub.payloads) != 1 {
		t.Errorf("published = %d, want 1", len(pub.payloads))
	}
}

func TestNotificationService_PublishErrorDoesNotFailPublisher(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	pub := &recordingPublisher{err: errors.New("redis down")}
	NewNotificationService(dispatcher, pub, nil, config.NotificationConfig{Channel: "c"}).RegisterHandlers()

	if err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketCreated}); err != nil {
		t.Errorf("Publish returned %v, want nil", err)
	}
}
