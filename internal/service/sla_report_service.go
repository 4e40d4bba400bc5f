package service

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	maxAtRiskHours = 24 * 7
	maxReportDays  = 366
)

// SLAReportService builds the SLA dashboards from stored breach flags.
type SLAReportService struct {
	reports  repository.SLAReportRepository
	defaults config.SLAConfig
	now      Clock
}

// NewSLAReportService constructs the service. Zero-valued defaults fall back
// to 2 hours at-risk, 30 days compliance and 14 days trend.
func NewSLAReportService(reports repository.SLAReportRepository, defaults config.SLAConfig, clock Clock) *SLAReportService {
	if defaults.AtRiskHours <= 0 {
		defaults.AtRiskHours = 2
	}
	if defaults.CompliancePeriodDays <= 0 {
		defaults.CompliancePeriodDays = 30
	}
	if defaults.TrendDays <= 0 {
		defaults.TrendDays = 14
	}
	return &SLAReportService{reports: reports, defaults: defaults, now: clockOrNow(clock)}
}

// DashboardFilter narrows the dashboard.
type DashboardFilter struct {
	DepartmentID *string
}

// ComplianceQuery selects the compliance grouping and trailing window.
type ComplianceQuery struct {
	GroupBy    domain.ComplianceGroupBy
	PeriodDays int
}

// GetDashboardStats returns counts and breach rates over tracked tickets.
func (s *SLAReportService) GetDashboardStats(ctx context.Context, filter DashboardFilter) (*domain.SLADashboardStats, error) {
	counts, err := s.reports.DashboardCounts(ctx, filter.DepartmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &domain.SLADashboardStats{
		SLACounts:            counts,
		ResponseBreachRate:   domain.BreachRate(counts.ResponseBreached, counts.Total),
		ResolutionBreachRate: domain.BreachRate(counts.ResolutionBreached, counts.Total),
	}, nil
}

// GetTicketsAtRisk lists open tickets with an unbreached deadline inside the
// next hoursWarning hours, most urgent priority first, then soonest deadline.
// hoursWarning 0 means "not given" and uses the configured default; callers
// that accept an explicit window reject 0 before calling.
func (s *SLAReportService) GetTicketsAtRisk(ctx context.Context, hoursWarning int) ([]domain.AtRiskTicket, error) {
	if hoursWarning < 0 || hoursWarning > maxAtRiskHours {
		return nil, apperrors.NewValidationError("hours out of range", map[string]any{"hours": hoursWarning, "max": maxAtRiskHours})
	}
	if hoursWarning == 0 {
		hoursWarning = s.defaults.AtRiskHours
	}

	until := s.now().Add(time.Duration(hoursWarning) * time.Hour)
	tickets, err := s.reports.ListAtRisk(ctx, until)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	sortAtRisk(tickets)
	if tickets == nil {
		tickets = []domain.AtRiskTicket{}
	}
	return tickets, nil
}

func sortAtRisk(tickets []domain.AtRiskTicket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		ri, rj := tickets[i].Priority.Rank(), tickets[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		di, dj := tickets[i].NextDue(), tickets[j].NextDue()
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})
}

// GetComplianceReport groups tracked tickets created in the trailing window.
// An empty GroupBy means department. Grouped by agent, unassigned tickets form
// their own row with an empty GroupID.
func (s *SLAReportService) GetComplianceReport(ctx context.Context, q ComplianceQuery) ([]domain.ComplianceRow, error) {
	if q.GroupBy == "" {
		q.GroupBy = domain.ComplianceByDepartment
	}
	if !q.GroupBy.Valid() {
		return nil, apperrors.NewValidationError("group_by must be department or agent", map[string]any{"group_by": q.GroupBy})
	}
	days, err := s.days(q.PeriodDays, s.defaults.CompliancePeriodDays, "period_days")
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.reports.ComplianceCounts(ctx, q.GroupBy, since)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for i := range rows {
		rows[i].ComplianceRate = domain.ComplianceRate(rows[i].Total, rows[i].AnyBreached)
		if rows[i].GroupID == "" && q.GroupBy == domain.ComplianceByAgent {
			rows[i].GroupName = domain.UnassignedGroupName
		}
	}
	if rows == nil {
		rows = []domain.ComplianceRow{}
	}
	return rows, nil
}

// GetBreachTrend returns one point per UTC day for the last days days,
// including days with no tickets.
func (s *SLAReportService) GetBreachTrend(ctx context.Context, days int) ([]domain.SLATrendPoint, error) {
	days, err := s.days(days, s.defaults.TrendDays, "days")
	if err != nil {
		return nil, err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	points, err := s.reports.BreachTrend(ctx, since)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	byDay := make(map[time.Time]domain.SLATrendPoint, len(points))
	for _, p := range points {
		byDay[p.Day.UTC().Truncate(24*time.Hour)] = p
	}
	series := make([]domain.SLATrendPoint, 0, days)
	for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
		p := byDay[d]
		p.Day = d
		series = append(series, p)
	}
	return series, nil
}

func (s *SLAReportService) days(v, fallback int, field string) (int, error) {
	if v < 0 || v > maxReportDays {
		return 0, apperrors.NewValidationError(field+" out of range", map[string]any{field: v, "max": maxReportDays})
	}
	if v == 0 {
		return fallback, nil
	}
	return v, nil
}
