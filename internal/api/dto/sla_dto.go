package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreatePolicyRequest payload for POST /sla/policies.
type CreatePolicyRequest struct {
	Name                string                `json:"name"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   int                   `json:"response_time_hours"`
	ResolutionTimeHours int                   `json:"resolution_time_hours"`
}

// UpdatePolicyRequest payload for PATCH /sla/policies/:id. Omitted fields are unchanged.
type UpdatePolicyRequest struct {
	Name                *string `json:"name"`
	ResponseTimeHours   *int    `json:"response_time_hours"`
	ResolutionTimeHours *int    `json:"resolution_time_hours"`
	IsActive            *bool   `json:"is_active"`
}

// PolicyResponse renders an SLA policy.
type PolicyResponse struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   int                   `json:"response_time_hours"`
	ResolutionTimeHours int                   `json:"resolution_time_hours"`
	IsActive            bool                  `json:"is_active"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// TicketSLAResponse is the per-ticket metrics view.
type TicketSLAResponse struct {
	TicketID                string                `json:"ticket_id"`
	PolicyID                string                `json:"policy_id"`
	Priority                domain.TicketPriority `json:"priority"`
	Status                  domain.TicketStatus   `json:"status"`
	State                   domain.SLAState       `json:"state"`
	ResponseDue             *time.Time            `json:"response_due"`
	ResolutionDue           *time.Time            `json:"resolution_due"`
	FirstResponseAt         *time.Time            `json:"first_response_at"`
	ResponseBreached        bool                  `json:"response_breached"`
	ResolutionBreached      bool                  `json:"resolution_breached"`
	ResponseTimeHours       *float64              `json:"response_time_hours"`
	ResponseRemainingMins   *float64              `json:"response_remaining_minutes"`
	ResolutionRemainingMins *float64              `json:"resolution_remaining_minutes"`
}

// BreachCheckResponse reports the flags after an on-demand evaluation.
type BreachCheckResponse struct {
	TicketID           string `json:"ticket_id"`
	ResponseBreached   bool   `json:"response_breached"`
	ResolutionBreached bool   `json:"resolution_breached"`
}

// SweepResponse summarizes a bulk breach sweep.
type SweepResponse struct {
	Checked            int     `json:"checked"`
	ResponseBreached   int     `json:"response_breached"`
	ResolutionBreached int     `json:"resolution_breached"`
	NewlyBreached      int     `json:"newly_breached"`
	Failed             int     `json:"failed"`
	DurationMillis     float64 `json:"duration_ms"`
}

// DashboardResponse renders dashboard counts and rates.
type DashboardResponse struct {
	TotalTickets         int64    `json:"total_tickets"`
	ResponseBreached     int64    `json:"response_breached"`
	ResolutionBreached   int64    `json:"resolution_breached"`
	ResolvedTickets      int64    `json:"resolved_tickets"`
	AvgResponseHours     *float64 `json:"avg_response_hours"`
	ResponseBreachRate   float64  `json:"response_breach_rate"`
	ResolutionBreachRate float64  `json:"resolution_breach_rate"`
}

// AtRiskResponse renders one at-risk ticket.
type AtRiskResponse struct {
	TicketID         string                `json:"ticket_id"`
	ExternalKey      string                `json:"external_key"`
	Title            string                `json:"title"`
	DepartmentID     string                `json:"department_id"`
	AssigneeID       *string               `json:"assignee_staff_id"`
	Status           domain.TicketStatus   `json:"status"`
	Priority         domain.TicketPriority `json:"priority"`
	ResponseDue      *time.Time            `json:"response_due"`
	ResolutionDue    *time.Time            `json:"resolution_due"`
	ResponseAtRisk   bool                  `json:"response_at_risk"`
	ResolutionAtRisk bool                  `json:"resolution_at_risk"`
}

// ComplianceRowResponse renders one compliance group.
type ComplianceRowResponse struct {
	GroupID            string   `json:"group_id"`
	GroupName          string   `json:"group_name"`
	TotalTickets       int64    `json:"total_tickets"`
	ResponseBreached   int64    `json:"response_breached"`
	ResolutionBreached int64    `json:"resolution_breached"`
	AnyBreached        int64    `json:"any_breached"`
	AvgResponseHours   *float64 `json:"avg_response_hours"`
	ComplianceRate     float64  `json:"compliance_rate"`
}

// TrendPointResponse renders one day of the breach trend.
type TrendPointResponse struct {
	Day                string `json:"day"`
	Created            int64  `json:"created"`
	ResponseBreached   int64  `json:"response_breached"`
	ResolutionBreached int64  `json:"resolution_breached"`
}
