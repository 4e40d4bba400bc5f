package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcher_HandlerErrorDoesNotStopOthers(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewInMemoryDispatcher(zap.New(core))

	var calls []string
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want both handlers", calls)
	}
	if logs.FilterMessage("event handler failed").Len() != 1 {
		t.Errorf("expected one handler failure log, got %d", logs.Len())
	}
}

func TestDispatcher_OnlyMatchingType(t *testing.T) {
	d := NewInMemoryDispatcher(nil)

	called := false
	d.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})
	_ = d.Publish(context.Background(), Event{Type: EventTicketCreated})

	if called {
		t.Error("handler for sla_breached received ticket_created")
	}
}
