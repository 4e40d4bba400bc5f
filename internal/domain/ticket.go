package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
)

// TerminalStatuses are the statuses after which resolution tracking stops.
var TerminalStatuses = []TicketStatus{TicketStatusResolved, TicketStatusClosed}

// IsTerminal reports whether the status ends resolution tracking.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusPendingUser, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities for display; higher is more urgent, 0 is unknown.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityCritical:
		return 4
	case TicketPriorityHigh:
		return 3
	case TicketPriorityMedium:
		return 2
	case TicketPriorityLow:
		return 1
	}
	return 0
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	ExternalKey  string
	RequesterID  string
	DepartmentID string
	AssigneeID   *string
	Title        string
	Description  string
	Status       TicketStatus
	Priority     TicketPriority
	Tags         []string
	SLA          TicketSLA
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// TicketSLA holds the SLA columns embedded in the ticket row.
type TicketSLA struct {
	PolicyID           *string
	ResponseDue        *time.Time
	ResolutionDue      *time.Time
	FirstResponseAt    *time.Time
	ResponseBreached   bool
	ResolutionBreached bool
}

// Tracked reports whether an SLA policy was applied to the ticket.
func (s TicketSLA) Tracked() bool {
	return s.PolicyID != nil
}
