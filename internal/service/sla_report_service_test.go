package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/repotest"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func newReportService(reports *repotest.Reports) *SLAReportService {
	return NewSLAReportService(reports, config.SLAConfig{}, func() time.Time { return baseTime })
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSLAReportService_Dashboard(t *testing.T) {
	avg := 1.25
	reports := &repotest.Reports{Counts: domain.SLACounts{
		Total:              8,
		ResponseBreached:   2,
		ResolutionBreached: 1,
		Resolved:           5,
		AvgResponseHours:   &avg,
	}}
	svc := newReportService(reports)
	dept := "dept-1"

	stats, err := svc.GetDashboardStats(context.Background(), DashboardFilter{DepartmentID: &dept})
	if err != nil {
		t.Fatalf("GetDashboardStats failed: %v", err)
	}
	if stats.ResponseBreachRate != 25 {
		t.Errorf("ResponseBreachRate = %v, want 25", stats.ResponseBreachRate)
	}
	if stats.ResolutionBreachRate != 12.5 {
		t.Errorf("ResolutionBreachRate = %v, want 12.5", stats.ResolutionBreachRate)
	}
	if reports.LastDepartmentID == nil || *reports.LastDepartmentID != dept {
		t.Errorf("department filter not passed through: %v", reports.LastDepartmentID)
	}
}

func TestSLAReportService_Dashboard_ZeroTotal(t *testing.T) {
	svc := newReportService(&repotest.Reports{})

	stats, err := svc.GetDashboardStats(context.Background(), DashboardFilter{})
	if err != nil {
		t.Fatalf("GetDashboardStats failed: %v", err)
	}
	if stats.ResponseBreachRate != 0 || stats.ResolutionBreachRate != 0 {
		t.Errorf("rates = %v/%v, want 0/0", stats.ResponseBreachRate, stats.ResolutionBreachRate)
	}
	if stats.AvgResponseHours != nil {
		t.Errorf("AvgResponseHours = %v, want nil", *stats.AvgResponseHours)
	}
}

func TestSLAReportService_TicketsAtRisk(t *testing.T) {
	reports := &repotest.Reports{AtRisk: []domain.AtRiskTicket{
		{TicketID: "low-soon", Priority: domain.TicketPriorityLow, ResolutionDue: timePtr(baseTime.Add(10 * time.Minute)), ResolutionAtRisk: true},
		{TicketID: "crit-later", Priority: domain.TicketPriorityCritical, ResponseDue: timePtr(baseTime.Add(110 * time.Minute)), ResponseAtRisk: true},
		{TicketID: "open-90m", Priority: domain.TicketPriorityCritical, Status: domain.TicketStatusOpen, ResponseDue: timePtr(baseTime.Add(90 * time.Minute)), ResponseAtRisk: true},
	}}
	svc := newReportService(reports)

	got, err := svc.GetTicketsAtRisk(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetTicketsAtRisk failed: %v", err)
	}
	if want := baseTime.Add(2 * time.Hour); !reports.LastUntil.Equal(want) {
		t.Errorf("until = %v, want %v", reports.LastUntil, want)
	}

	wantOrder := []string{"open-90m", "crit-later", "low-soon"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].TicketID != id {
			t.Errorf("got[%d] = %q, want %q", i, got[i].TicketID, id)
		}
	}
	if !got[0].ResponseAtRisk {
		t.Error("open-90m not flagged response_at_risk")
	}
}

func TestSLAReportService_TicketsAtRisk_SelectsOpenUnmetDeadlines(t *testing.T) {
	policy := "pol-critical"
	responded := baseTime.Add(-5 * time.Minute)
	tracked := func(id string, status domain.TicketStatus, responseIn, resolutionIn time.Duration) domain.Ticket {
		return domain.Ticket{
			ID:       id,
			Status:   status,
			Priority: domain.TicketPriorityHigh,
			SLA: domain.TicketSLA{
				PolicyID:      &policy,
				ResponseDue:   timePtr(baseTime.Add(responseIn)),
				ResolutionDue: timePtr(baseTime.Add(resolutionIn)),
			},
		}
	}

	openSoon := tracked("open-90m", domain.TicketStatusOpen, 90*time.Minute, 10*time.Hour)
	answered := tracked("answered", domain.TicketStatusInProgress, 90*time.Minute, 10*time.Hour)
	answered.SLA.FirstResponseAt = &responded
	flagged := tracked("flagged", domain.TicketStatusOpen, 90*time.Minute, 10*time.Hour)
	flagged.SLA.ResponseBreached = true
	resolved := tracked("resolved", domain.TicketStatusResolved, 90*time.Minute, 100*time.Minute)
	later := tracked("later", domain.TicketStatusOpen, 3*time.Hour, 10*time.Hour)
	resolving := tracked("resolving", domain.TicketStatusInProgress, -time.Hour, time.Hour)
	resolving.SLA.FirstResponseAt = &responded

	reports := &repotest.Reports{Tickets: []domain.Ticket{openSoon, answered, flagged, resolved, later, resolving}}
	svc := newReportService(reports)

	got, err := svc.GetTicketsAtRisk(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetTicketsAtRisk failed: %v", err)
	}

	byID := map[string]domain.AtRiskTicket{}
	for _, row := range got {
		byID[row.TicketID] = row
	}
	if len(byID) != 2 {
		t.Fatalf("at-risk ids = %v, want open-90m and resolving", byID)
	}
	if row := byID["open-90m"]; !row.ResponseAtRisk || row.ResolutionAtRisk {
		t.Errorf("open-90m = %+v, want response_at_risk only", row)
	}
	if row := byID["resolving"]; row.ResponseAtRisk || !row.ResolutionAtRisk {
		t.Errorf("resolving = %+v, want resolution_at_risk only", row)
	}
	for _, excluded := range []string{"answered", "flagged", "resolved", "later"} {
		if _, ok := byID[excluded]; ok {
			t.Errorf("%s listed as at risk", excluded)
		}
	}
}

func TestSLAReportService_TicketsAtRisk_Hours(t *testing.T) {
	reports := &repotest.Reports{}
	svc := newReportService(reports)

	got, err := svc.GetTicketsAtRisk(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetTicketsAtRisk failed: %v", err)
	}
	if got == nil {
		t.Error("empty result is nil, want empty slice")
	}
	if want := baseTime.Add(2 * time.Hour); !reports.LastUntil.Equal(want) {
		t.Errorf("default until = %v, want %v", reports.LastUntil, want)
	}

	for _, hours := range []int{-1, maxAtRiskHours + 1} {
		if _, err := svc.GetTicketsAtRisk(context.Background(), hours); !apperrors.HasCode(err, apperrors.CodeValidation) {
			t.Errorf("hours=%d: err = %v, want VALIDATION_FAILED", hours, err)
		}
	}
}

func TestSLAReportService_Compliance(t *testing.T) {
	reports := &repotest.Reports{Rows: []domain.ComplianceRow{
		{GroupID: "dept-1", GroupName: "Billing", SLACounts: domain.SLACounts{Total: 4, AnyBreached: 1}},
		{GroupID: "dept-2", GroupName: "Hardware", SLACounts: domain.SLACounts{Total: 0}},
	}}
	svc := newReportService(reports)

	rows, err := svc.GetComplianceReport(context.Background(), ComplianceQuery{})
	if err != nil {
		t.Fatalf("GetComplianceReport failed: %v", err)
	}
	if reports.LastGroupBy != domain.ComplianceByDepartment {
		t.Errorf("group by = %q, want department", reports.LastGroupBy)
	}
	if want := baseTime.Add(-30 * 24 * time.Hour); !reports.LastSince.Equal(want) {
		t.Errorf("since = %v, want %v", reports.LastSince, want)
	}
	if rows[0].ComplianceRate != 75 {
		t.Errorf("dept-1 rate = %v, want 75", rows[0].ComplianceRate)
	}
	if rows[1].ComplianceRate != 100 {
		t.Errorf("empty group rate = %v, want 100", rows[1].ComplianceRate)
	}

	if _, err := svc.GetComplianceReport(context.Background(), ComplianceQuery{GroupBy: "team"}); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
	if _, err := svc.GetComplianceReport(context.Background(), ComplianceQuery{PeriodDays: 400}); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestSLAReportService_Compliance_UnassignedAgentRow(t *testing.T) {
	reports := &repotest.Reports{Rows: []domain.ComplianceRow{
		{GroupID: "staff-1", GroupName: "Ada", SLACounts: domain.SLACounts{Total: 2}},
		{SLACounts: domain.SLACounts{Total: 3, AnyBreached: 3}},
	}}
	svc := newReportService(reports)

	rows, err := svc.GetComplianceReport(context.Background(), ComplianceQuery{GroupBy: domain.ComplianceByAgent})
	if err != nil {
		t.Fatalf("GetComplianceReport failed: %v", err)
	}
	if rows[1].GroupName != domain.UnassignedGroupName {
		t.Errorf("unassigned row name = %q, want %q", rows[1].GroupName, domain.UnassignedGroupName)
	}
	if rows[1].ComplianceRate != 0 {
		t.Errorf("unassigned rate = %v, want 0", rows[1].ComplianceRate)
	}
	if rows[0].GroupName != "Ada" {
		t.Errorf("agent row renamed to %q", rows[0].GroupName)
	}
}

func TestSLAReportService_BreachTrend_FillsGaps(t *testing.T) {
	today := baseTime.Truncate(24 * time.Hour)
	reports := &repotest.Reports{Trend: []domain.SLATrendPoint{
		{Day: today.AddDate(0, 0, -2), Created: 3, ResponseBreached: 1},
		{Day: today, Created: 1},
	}}
	svc := newReportService(reports)

	series, err := svc.GetBreachTrend(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetBreachTrend failed: %v", err)
	}
	if len(series) != 4 {
		t.Fatalf("len = %d, want 4", len(series))
	}
	if want := today.AddDate(0, 0, -3); !reports.LastSince.Equal(want) {
		t.Errorf("since = %v, want %v", reports.LastSince, want)
	}
	wantCreated := []int64{0, 3, 0, 1}
	for i, p := range series {
		if want := today.AddDate(0, 0, i-3); !p.Day.Equal(want) {
			t.Errorf("series[%d].Day = %v, want %v", i, p.Day, want)
		}
		if p.Created != wantCreated[i] {
			t.Errorf("series[%d].Created = %d, want %d", i, p.Created, wantCreated[i])
		}
	}
	if series[1].ResponseBreached != 1 {
		t.Errorf("series[1].ResponseBreached = %d, want 1", series[1].ResponseBreached)
	}
}

func TestSLAReportService_PropagatesStoreErrors(t *testing.T) {
	svc := newReportService(&repotest.Reports{Err: errors.New("connection reset")})

	if _, err := svc.GetDashboardStats(context.Background(), DashboardFilter{}); !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("err = %v, want INTERNAL_ERROR", err)
	}
}
