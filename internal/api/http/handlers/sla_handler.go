package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// SLAHandler serves policy management, sweeps and SLA reports.
type SLAHandler struct {
	sla     *service.SLAService
	reports *service.SLAReportService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService, reportService *service.SLAReportService) *SLAHandler {
	return &SLAHandler{sla: slaService, reports: reportService}
}

// ListPolicies GET /sla/policies. ?priority= returns only the active policy for it.
func (h *SLAHandler) ListPolicies(c *fiber.Ctx) error {
	if priority := c.Query("priority"); priority != "" {
		policy, err := h.sla.GetPolicyByPriority(c.UserContext(), domain.TicketPriority(strings.ToUpper(priority)))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": []dto.PolicyResponse{policyResponse(policy)}})
	}
	policies, err := h.sla.ListPolicies(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetPolicy GET /sla/policies/:id.
func (h *SLAHandler) GetPolicy(c *fiber.Ctx) error {
	policy, err := h.sla.GetPolicy(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// CreatePolicy POST /sla/policies.
func (h *SLAHandler) CreatePolicy(c *fiber.Ctx) error {
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.sla.CreatePolicy(c.UserContext(), service.PolicyCreateInput{
		Name:                req.Name,
		Priority:            domain.TicketPriority(strings.ToUpper(string(req.Priority))),
		ResponseTimeHours:   req.ResponseTimeHours,
		ResolutionTimeHours: req.ResolutionTimeHours,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// UpdatePolicy PATCH /sla/policies/:id.
func (h *SLAHandler) UpdatePolicy(c *fiber.Ctx) error {
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.sla.UpdatePolicy(c.UserContext(), c.Params("id"), service.PolicyUpdateInput{
		Name:                req.Name,
		ResponseTimeHours:   req.ResponseTimeHours,
		ResolutionTimeHours: req.ResolutionTimeHours,
		IsActive:            req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// CheckAllBreaches POST /sla/check-breaches.
func (h *SLAHandler) CheckAllBreaches(c *fiber.Ctx) error {
	result, err := h.sla.CheckAllBreaches(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Checked:            result.Checked,
		ResponseBreached:   result.ResponseBreached,
		ResolutionBreached: result.ResolutionBreached,
		NewlyBreached:      result.NewlyBreached,
		Failed:             result.Failed,
		DurationMillis:     float64(result.Duration.Microseconds()) / 1000,
	}})
}

// Dashboard GET /sla/dashboard. Team leads only see their own department.
func (h *SLAHandler) Dashboard(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	filter := service.DashboardFilter{}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if !staff.IsAdmin() {
		filter.DepartmentID = staff.DepartmentID
	}

	stats, err := h.reports.GetDashboardStats(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DashboardResponse{
		TotalTickets:         stats.Total,
		ResponseBreached:     stats.ResponseBreached,
		ResolutionBreached:   stats.ResolutionBreached,
		ResolvedTickets:      stats.Resolved,
		AvgResponseHours:     stats.AvgResponseHours,
		ResponseBreachRate:   stats.ResponseBreachRate,
		ResolutionBreachRate: stats.ResolutionBreachRate,
	}})
}

// AtRisk GET /sla/at-risk?hours=N. Omitting hours uses SLA_AT_RISK_HOURS; an
// explicit hours must be at least 1.
func (h *SLAHandler) AtRisk(c *fiber.Ctx) error {
	hours, err := queryInt(c, "hours")
	if err != nil {
		return err
	}
	if c.Query("hours") != "" && hours <= 0 {
		return apperrors.NewValidationError("hours must be at least 1", map[string]any{"hours": hours})
	}
	tickets, err := h.reports.GetTicketsAtRisk(c.UserContext(), hours)
	if err != nil {
		return err
	}
	items := make([]dto.AtRiskResponse, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, dto.AtRiskResponse{
			TicketID:         t.TicketID,
			ExternalKey:      t.ExternalKey,
			Title:            t.Title,
			DepartmentID:     t.DepartmentID,
			AssigneeID:       t.AssigneeID,
			Status:           t.Status,
			Priority:         t.Priority,
			ResponseDue:      t.ResponseDue,
			ResolutionDue:    t.ResolutionDue,
			ResponseAtRisk:   t.ResponseAtRisk,
			ResolutionAtRisk: t.ResolutionAtRisk,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Compliance GET /sla/compliance?group_by=department|agent&period_days=N.
func (h *SLAHandler) Compliance(c *fiber.Ctx) error {
	days, err := queryInt(c, "period_days")
	if err != nil {
		return err
	}
	rows, err := h.reports.GetComplianceReport(c.UserContext(), service.ComplianceQuery{
		GroupBy:    domain.ComplianceGroupBy(strings.ToLower(c.Query("group_by"))),
		PeriodDays: days,
	})
	if err != nil {
		return err
	}
	items := make([]dto.ComplianceRowResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, dto.ComplianceRowResponse{
			GroupID:            r.GroupID,
			GroupName:          r.GroupName,
			TotalTickets:       r.Total,
			ResponseBreached:   r.ResponseBreached,
			ResolutionBreached: r.ResolutionBreached,
			AnyBreached:        r.AnyBreached,
			AvgResponseHours:   r.AvgResponseHours,
			ComplianceRate:     r.ComplianceRate,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Trend GET /sla/trend?days=N.
func (h *SLAHandler) Trend(c *fiber.Ctx) error {
	days, err := queryInt(c, "days")
	if err != nil {
		return err
	}
	points, err := h.reports.GetBreachTrend(c.UserContext(), days)
	if err != nil {
		return err
	}
	items := make([]dto.TrendPointResponse, 0, len(points))
	for _, p := range points {
		items = append(items, dto.TrendPointResponse{
			Day:                p.Day.Format("2006-01-02"),
			Created:            p.Created,
			ResponseBreached:   p.ResponseBreached,
			ResolutionBreached: p.ResolutionBreached,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func policyResponse(p *domain.SLAPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Priority:            p.Priority,
		ResponseTimeHours:   p.ResponseTimeHours,
		ResolutionTimeHours: p.ResolutionTimeHours,
		IsActive:            p.IsActive,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}
