package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository/repotest"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func criticalPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{
		ID:                  "pol-critical",
		Name:                "Critical",
		Priority:            domain.TicketPriorityCritical,
		ResponseTimeHours:   1,
		ResolutionTimeHours: 4,
		IsActive:            true,
	}
}

// eventLog captures every published event.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handler(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type slaFixture struct {
	svc      *SLAService
	policies *repotest.Policies
	tickets  *repotest.Tickets
	history  *repotest.History
	events   *eventLog
	metrics  *observability.Metrics
	logs     *observer.ObservedLogs
	now      time.Time
}

func newSLAFixture(t *testing.T, seed ...domain.SLAPolicy) *slaFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	f := &slaFixture{
		policies: repotest.NewPolicies(seed...),
		tickets:  repotest.NewTickets(),
		history:  &repotest.History{},
		events:   &eventLog{},
		metrics:  observability.NewMetrics("test"),
		logs:     logs,
		now:      baseTime,
	}
	dispatcher := events.NewInMemoryDispatcher(zap.New(core))
	dispatcher.Subscribe(events.EventSLABreached, f.events.handler)

	f.svc = NewSLAService(SLADependencies{
		PolicyRepo:  f.policies,
		TicketRepo:  f.tickets,
		SLARepo:     f.tickets,
		HistoryRepo: f.history,
		Dispatcher:  dispatcher,
		Metrics:     f.metrics,
		Logger:      zap.New(core),
		Clock:       func() time.Time { return f.now },
	})
	return f
}

// openTicket seeds an OPEN ticket created at baseTime.
func (f *slaFixture) openTicket(id string, priority domain.TicketPriority) {
	f.tickets.Put(domain.Ticket{
		ID:           id,
		DepartmentID: "dept-1",
		Title:        "printer on fire",
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		CreatedAt:    baseTime,
	})
}

func (f *slaFixture) setStatus(t *testing.T, id string, status domain.TicketStatus) {
	t.Helper()
	ticket, ok := f.tickets.Snapshot(id)
	if !ok {
		t.Fatalf("ticket %s not seeded", id)
	}
	ticket.Status = status
	f.tickets.Put(ticket)
}

func intPtr(v int) *int { return &v }

func TestSLAService_CreatePolicy(t *testing.T) {
	f := newSLAFixture(t)

	policy, err := f.svc.CreatePolicy(context.Background(), PolicyCreateInput{
		Name:                "  High  ",
		Priority:            domain.TicketPriorityHigh,
		ResponseTimeHours:   4,
		ResolutionTimeHours: 24,
	})
	if err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}
	if policy.ID == "" {
		t.Error("policy id not assigned")
	}
	if policy.Name != "High" {
		t.Errorf("Name = %q, want %q", policy.Name, "High")
	}
	if !policy.IsActive {
		t.Error("new policy not active")
	}
}

func TestSLAService_CreatePolicy_DuplicateActivePriority(t *testing.T) {
	f := newSLAFixture(t, domain.SLAPolicy{
		ID: "pol-high", Name: "High", Priority: domain.TicketPriorityHigh,
		ResponseTimeHours: 4, ResolutionTimeHours: 24, IsActive: true,
	})

	_, err := f.svc.CreatePolicy(context.Background(), PolicyCreateInput{
		Name:                "High v2",
		Priority:            domain.TicketPriorityHigh,
		ResponseTimeHours:   2,
		ResolutionTimeHours: 12,
	})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
	if n := f.policies.Len(); n != 1 {
		t.Errorf("stored policies = %d, want 1", n)
	}
}

func TestSLAService_CreatePolicy_Validation(t *testing.T) {
	f := newSLAFixture(t)

	tests := []struct {
		name  string
		input PolicyCreateInput
		field string
	}{
		{"missing name", PolicyCreateInput{Priority: domain.TicketPriorityLow, ResponseTimeHours: 1, ResolutionTimeHours: 1}, "name"},
		{"unknown priority", PolicyCreateInput{Name: "x", Priority: "URGENT", ResponseTimeHours: 1, ResolutionTimeHours: 1}, "priority"},
		{"zero response", PolicyCreateInput{Name: "x", Priority: domain.TicketPriorityLow, ResolutionTimeHours: 1}, "response_time_hours"},
		{"negative resolution", PolicyCreateInput{Name: "x", Priority: domain.TicketPriorityLow, ResponseTimeHours: 1, ResolutionTimeHours: -2}, "resolution_time_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePolicy(context.Background(), tt.input)
			derr := apperrors.ToDomainError(err)
			if derr == nil || derr.Code != apperrors.CodeValidation {
				t.Fatalf("err = %v, want VALIDATION_FAILED", err)
			}
			if _, ok := derr.Details[tt.field]; !ok {
				t.Errorf("details %v missing %q", derr.Details, tt.field)
			}
		})
	}
	if n := f.policies.Len(); n != 0 {
		t.Errorf("stored policies = %d, want 0", n)
	}
}

func TestSLAService_UpdatePolicy(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())

	updated, err := f.svc.UpdatePolicy(context.Background(), "pol-critical", PolicyUpdateInput{ResponseTimeHours: intPtr(2)})
	if err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}
	if updated.ResponseTimeHours != 2 || updated.ResolutionTimeHours != 4 {
		t.Errorf("hours = %d/%d, want 2/4", updated.ResponseTimeHours, updated.ResolutionTimeHours)
	}

	_, err = f.svc.UpdatePolicy(context.Background(), "missing", PolicyUpdateInput{})
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestSLAService_GetPolicyByPriority(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())

	if _, err := f.svc.GetPolicyByPriority(context.Background(), "URGENT"); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
	if _, err := f.svc.GetPolicyByPriority(context.Background(), domain.TicketPriorityLow); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	got, err := f.svc.GetPolicyByPriority(context.Background(), domain.TicketPriorityCritical)
	if err != nil {
		t.Fatalf("GetPolicyByPriority failed: %v", err)
	}
	if got.ID != "pol-critical" {
		t.Errorf("ID = %q, want %q", got.ID, "pol-critical")
	}
}

func TestSLAService_InitializeSLA(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)

	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)

	ticket, _ := f.tickets.Snapshot("t-1")
	if ticket.SLA.PolicyID == nil || *ticket.SLA.PolicyID != "pol-critical" {
		t.Fatalf("PolicyID = %v, want pol-critical", ticket.SLA.PolicyID)
	}
	if want := baseTime.Add(time.Hour); !ticket.SLA.ResponseDue.Equal(want) {
		t.Errorf("ResponseDue = %v, want %v", ticket.SLA.ResponseDue, want)
	}
	if want := baseTime.Add(4 * time.Hour); !ticket.SLA.ResolutionDue.Equal(want) {
		t.Errorf("ResolutionDue = %v, want %v", ticket.SLA.ResolutionDue, want)
	}
	if ticket.SLA.ResponseBreached || ticket.SLA.ResolutionBreached || ticket.SLA.FirstResponseAt != nil {
		t.Errorf("fresh SLA state not clean: %+v", ticket.SLA)
	}
	// re-applying the same policy is allowed and audited
	if n := len(f.history.OfType(domain.ChangeTypeSLAInit)); n != 2 {
		t.Errorf("init history entries = %d, want 2", n)
	}
}

func TestSLAService_InitializeSLA_NoPolicyLeavesTicketUntracked(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-low", domain.TicketPriorityLow)

	f.svc.InitializeSLA(context.Background(), "t-low", domain.TicketPriorityLow)

	ticket, _ := f.tickets.Snapshot("t-low")
	if ticket.SLA.Tracked() {
		t.Errorf("ticket tracked without a policy: %+v", ticket.SLA)
	}
	if n := f.logs.FilterMessage("no active sla policy for priority; ticket left untracked").Len(); n != 1 {
		t.Errorf("untracked log entries = %d, want 1", n)
	}
}

func TestSLAService_InitializeSLA_SwallowsStoreFailure(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.policies.Err = errors.New("connection refused")

	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)

	if n := f.logs.FilterMessage("sla policy lookup failed").FilterLevelExact(zap.ErrorLevel).Len(); n != 1 {
		t.Errorf("error log entries = %d, want 1", n)
	}
}

func TestSLAService_RecordFirstResponse_OnlyOnce(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)

	f.now = baseTime.Add(20 * time.Minute)
	f.svc.RecordFirstResponse(context.Background(), "t-1")
	f.now = baseTime.Add(3 * time.Hour)
	f.svc.RecordFirstResponse(context.Background(), "t-1")

	ticket, _ := f.tickets.Snapshot("t-1")
	if want := baseTime.Add(20 * time.Minute); ticket.SLA.FirstResponseAt == nil || !ticket.SLA.FirstResponseAt.Equal(want) {
		t.Errorf("FirstResponseAt = %v, want %v", ticket.SLA.FirstResponseAt, want)
	}
	if ticket.SLA.ResponseBreached {
		t.Error("on-time response marked breached")
	}
	if n := len(f.history.OfType(domain.ChangeTypeFirstResponse)); n != 1 {
		t.Errorf("first response history entries = %d, want 1", n)
	}
}

func TestSLAService_RecordFirstResponse_LateMarksBreach(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)

	f.now = baseTime.Add(90 * time.Minute)
	f.svc.RecordFirstResponse(context.Background(), "t-1")

	ticket, _ := f.tickets.Snapshot("t-1")
	if !ticket.SLA.ResponseBreached {
		t.Error("late first response not marked breached")
	}
}

func TestSLAService_CheckBreaches_CriticalScenario(t *testing.T) {
	ctx := context.Background()
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(ctx, "t-1", domain.TicketPriorityCritical)

	f.now = baseTime.Add(2 * time.Hour)
	flags, err := f.svc.CheckBreaches(ctx, "t-1")
	if err != nil {
		t.Fatalf("CheckBreaches failed: %v", err)
	}
	if !flags.ResponseBreached || flags.ResolutionBreached {
		t.Errorf("T+2h flags = %+v, want response only", flags)
	}

	f.now = baseTime.Add(5 * time.Hour)
	flags, err = f.svc.CheckBreaches(ctx, "t-1")
	if err != nil {
		t.Fatalf("CheckBreaches failed: %v", err)
	}
	if !flags.ResponseBreached || !flags.ResolutionBreached {
		t.Errorf("T+5h flags = %+v, want both", flags)
	}

	f.setStatus(t, "t-1", domain.TicketStatusResolved)
	flags, err = f.svc.CheckBreaches(ctx, "t-1")
	if err != nil {
		t.Fatalf("CheckBreaches failed: %v", err)
	}
	if !flags.ResponseBreached || flags.ResolutionBreached {
		t.Errorf("resolved flags = %+v, want response only", flags)
	}

	stored, _ := f.tickets.Snapshot("t-1")
	if !stored.SLA.ResponseBreached || stored.SLA.ResolutionBreached {
		t.Errorf("stored flags = %+v, want response only", stored.SLA)
	}

	breachEvents := f.events.ofType(events.EventSLABreached)
	if len(breachEvents) != 2 {
		t.Fatalf("sla_breached events = %d, want 2", len(breachEvents))
	}
	first := breachEvents[0].Payload.(events.SLABreachedPayload)
	if !first.ResponseBreached || first.ResolutionBreached {
		t.Errorf("first event payload = %+v, want response only", first)
	}
	second := breachEvents[1].Payload.(events.SLABreachedPayload)
	if second.ResponseBreached || !second.ResolutionBreached {
		t.Errorf("second event payload = %+v, want resolution only", second)
	}
	if breachEvents[0].Actor.Type != domain.SubjectTypeSystem {
		t.Errorf("actor = %q, want SYSTEM", breachEvents[0].Actor.Type)
	}
	if n := len(f.history.OfType(domain.ChangeTypeSLABreach)); n != 2 {
		t.Errorf("breach history entries = %d, want 2", n)
	}
	series, err := testutil.GatherAndCount(f.metrics.Registry(), "test_sla_breaches_total")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if series != 2 {
		t.Errorf("breach metric series = %d, want 2", series)
	}
}

func TestSLAService_CheckBreaches_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(ctx, "t-1", domain.TicketPriorityCritical)

	f.now = baseTime.Add(2 * time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.CheckBreaches(ctx, "t-1"); err != nil {
			t.Fatalf("CheckBreaches #%d failed: %v", i, err)
		}
	}
	if f.tickets.FlagWrites != 1 {
		t.Errorf("flag writes = %d, want 1", f.tickets.FlagWrites)
	}
	if n := len(f.events.ofType(events.EventSLABreached)); n != 1 {
		t.Errorf("sla_breached events = %d, want 1", n)
	}
}

func TestSLAService_CheckBreaches_UnknownTicket(t *testing.T) {
	f := newSLAFixture(t)
	if _, err := f.svc.CheckBreaches(context.Background(), "nope"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestSLAService_CheckAllBreaches(t *testing.T) {
	ctx := context.Background()
	f := newSLAFixture(t, criticalPolicy())
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		f.openTicket(id, domain.TicketPriorityCritical)
		f.svc.InitializeSLA(ctx, id, domain.TicketPriorityCritical)
	}
	f.openTicket("t-untracked", domain.TicketPriorityLow)
	f.setStatus(t, "t-3", domain.TicketStatusClosed)
	f.tickets.FailFlags["t-2"] = errors.New("deadlock detected")

	f.now = baseTime.Add(5 * time.Hour)
	result, err := f.svc.CheckAllBreaches(ctx)
	if err != nil {
		t.Fatalf("CheckAllBreaches failed: %v", err)
	}

	if result.Checked != 1 {
		t.Errorf("Checked = %d, want 1", result.Checked)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if result.ResponseBreached != 1 || result.ResolutionBreached != 1 || result.NewlyBreached != 1 {
		t.Errorf("result = %+v, want one ticket breached on both", result)
	}
	if n := f.logs.FilterMessage("breach check failed").Len(); n != 1 {
		t.Errorf("failure logs = %d, want 1", n)
	}
	if n := f.logs.FilterMessage("sla sweep finished").Len(); n != 1 {
		t.Errorf("summary logs = %d, want 1", n)
	}
}

func TestSLAService_CheckAllBreaches_StopsOnCancel(t *testing.T) {
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.svc.InitializeSLA(context.Background(), "t-1", domain.TicketPriorityCritical)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.svc.CheckAllBreaches(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result.Checked != 0 {
		t.Errorf("Checked = %d, want 0", result.Checked)
	}
}

func TestSLAService_GetTicketSLAMetrics(t *testing.T) {
	ctx := context.Background()
	f := newSLAFixture(t, criticalPolicy())
	f.openTicket("t-1", domain.TicketPriorityCritical)
	f.openTicket("t-untracked", domain.TicketPriorityLow)
	f.svc.InitializeSLA(ctx, "t-1", domain.TicketPriorityCritical)

	f.now = baseTime.Add(2 * time.Hour)
	m, err := f.svc.GetTicketSLAMetrics(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTicketSLAMetrics failed: %v", err)
	}
	if m.State != domain.SLAStateResponseBreached {
		t.Errorf("State = %q, want %q", m.State, domain.SLAStateResponseBreached)
	}
	if m.ResolutionRemainingMins == nil || *m.ResolutionRemainingMins != 120 {
		t.Errorf("ResolutionRemainingMins = %v, want 120", m.ResolutionRemainingMins)
	}

	m, err = f.svc.GetTicketSLAMetrics(ctx, "t-untracked")
	if err != nil {
		t.Fatalf("GetTicketSLAMetrics failed: %v", err)
	}
	if m != nil {
		t.Errorf("metrics = %+v, want nil for untracked ticket", m)
	}
}
