package domain

import (
	"math"
	"time"
)

// SLACounts are the raw aggregates a report row is built from.
type SLACounts struct {
	Total              int64
	ResponseBreached   int64
	ResolutionBreached int64
	AnyBreached        int64
	Resolved           int64
	AvgResponseHours   *float64
}

// SLADashboardStats summarizes breach flags across tracked tickets.
type SLADashboardStats struct {
	SLACounts
	ResponseBreachRate   float64
	ResolutionBreachRate float64
}

// AtRiskTicket is a non-terminal ticket close to missing a deadline.
type AtRiskTicket struct {
	TicketID         string
	ExternalKey      string
	Title            string
	DepartmentID     string
	AssigneeID       *string
	Status           TicketStatus
	Priority         TicketPriority
	ResponseDue      *time.Time
	ResolutionDue    *time.Time
	ResponseAtRisk   bool
	ResolutionAtRisk bool
}

// NextDue returns the sooner of the two deadlines, or nil when neither is set.
func (t AtRiskTicket) NextDue() *time.Time {
	switch {
	case t.ResponseDue == nil:
		return t.ResolutionDue
	case t.ResolutionDue == nil:
		return t.ResponseDue
	case t.ResolutionDue.Before(*t.ResponseDue):
		return t.ResolutionDue
	default:
		return t.ResponseDue
	}
}

// AtRiskFlags reports which deadlines of an open tracked ticket fall at or
// before until while still unmet and unbreached. A deadline already past but
// not yet flagged by a sweep still counts. The report SQL mirrors this rule.
func AtRiskFlags(t Ticket, until time.Time) (response, resolution bool) {
	if !t.SLA.Tracked() || t.Status.IsTerminal() {
		return false, false
	}
	sla := t.SLA
	response = sla.FirstResponseAt == nil && !sla.ResponseBreached &&
		sla.ResponseDue != nil && !sla.ResponseDue.After(until)
	resolution = !sla.ResolutionBreached &&
		sla.ResolutionDue != nil && !sla.ResolutionDue.After(until)
	return response, resolution
}

// NewAtRiskTicket builds the report row for t; ok is false when neither
// deadline is at risk.
func NewAtRiskTicket(t Ticket, until time.Time) (row AtRiskTicket, ok bool) {
	response, resolution := AtRiskFlags(t, until)
	if !response && !resolution {
		return AtRiskTicket{}, false
	}
	return AtRiskTicket{
		TicketID:         t.ID,
		ExternalKey:      t.ExternalKey,
		Title:            t.Title,
		DepartmentID:     t.DepartmentID,
		AssigneeID:       t.AssigneeID,
		Status:           t.Status,
		Priority:         t.Priority,
		ResponseDue:      t.SLA.ResponseDue,
		ResolutionDue:    t.SLA.ResolutionDue,
		ResponseAtRisk:   response,
		ResolutionAtRisk: resolution,
	}, true
}

// ComplianceGroupBy selects the compliance report dimension.
type ComplianceGroupBy string

const (
	ComplianceByDepartment ComplianceGroupBy = "department"
	ComplianceByAgent      ComplianceGroupBy = "agent"
)

// Valid reports whether g is a supported grouping.
func (g ComplianceGroupBy) Valid() bool {
	return g == ComplianceByDepartment || g == ComplianceByAgent
}

// UnassignedGroupName labels the per-agent compliance row for tickets with no assignee.
const UnassignedGroupName = "Unassigned"

// ComplianceRow is one group of the compliance report.
type ComplianceRow struct {
	GroupID   string
	GroupName string
	SLACounts
	ComplianceRate float64
}

// SLATrendPoint is one day of the breach time series.
type SLATrendPoint struct {
	Day                time.Time
	Created            int64
	ResponseBreached   int64
	ResolutionBreached int64
}

// BreachRate is part/total as a percentage, 0 when total is 0.
func BreachRate(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

// ComplianceRate is (total-breached)/total as a percentage, 100 when total is 0.
func ComplianceRate(total, breached int64) float64 {
	if total <= 0 {
		return 100
	}
	return round2(float64(total-breached) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
