package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/staff/login", cfg.Staff.Login)

	authed := app.Group("", cfg.AuthMiddleware.Handle)
	authed.Get("/departments", cfg.Staff.ListDepartments)

	tickets := authed.Group("/tickets", auth.RequireUser())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	staff := authed.Group("/staff", auth.RequireStaffRole())
	staff.Get("/me", cfg.Staff.Me)
	staff.Get("/members", cfg.Staff.ListStaff)
	staff.Get("/members/:id", cfg.Staff.GetStaff)
	staff.Get("/tickets", cfg.StaffTickets.ListStaffTickets)
	staff.Get("/tickets/:id", cfg.StaffTickets.GetStaffTicket)
	staff.Post("/tickets/:id/messages", cfg.StaffTickets.AddStaffMessage)
	staff.Patch("/tickets/:id/status", cfg.StaffTickets.UpdateStatus)
	staff.Post("/tickets/:id/assign", cfg.StaffTickets.Assign)
	staff.Get("/tickets/:id/history", cfg.StaffTickets.History)
	staff.Get("/tickets/:id/sla", cfg.StaffTickets.TicketSLA)
	staff.Post("/tickets/:id/sla/check", cfg.StaffTickets.CheckTicketBreaches)

	sla := authed.Group("/sla", auth.RequireStaffRole())
	sla.Get("/policies", cfg.SLA.ListPolicies)
	sla.Get("/policies/:id", cfg.SLA.GetPolicy)

	leads := auth.RequireStaffRole(domain.StaffRoleTeamLead, domain.StaffRoleAdmin)
	sla.Get("/dashboard", leads, cfg.SLA.Dashboard)
	sla.Get("/at-risk", leads, cfg.SLA.AtRisk)
	sla.Get("/compliance", leads, cfg.SLA.Compliance)
	sla.Get("/trend", leads, cfg.SLA.Trend)

	admins := auth.RequireStaffRole(domain.StaffRoleAdmin)
	sla.Post("/policies", admins, cfg.SLA.CreatePolicy)
	sla.Patch("/policies/:id", admins, cfg.SLA.UpdatePolicy)
	sla.Post("/check-breaches", admins, cfg.SLA.CheckAllBreaches)
}
