package dto

import "github.com/spec-kit/helpdesk/internal/domain"

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffResponse is the directory view of a staff member.
type StaffResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Role         domain.StaffRole `json:"role"`
	DepartmentID *string          `json:"department_id"`
	Active       bool             `json:"active"`
}

// DepartmentResponse lists a department.
type DepartmentResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpdateStatusRequest moves a ticket along the workflow.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// AssignTicketRequest picks an assignee; empty means the caller.
type AssignTicketRequest struct {
	AssigneeStaffID string `json:"assignee_staff_id"`
}
