package domain

import "time"

// SLAPolicy maps a priority to response and resolution targets.
type SLAPolicy struct {
	ID                  string
	Name                string
	Priority            TicketPriority
	ResponseTimeHours   int
	ResolutionTimeHours int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SLADeadlines is the calculator output for a single ticket.
type SLADeadlines struct {
	PolicyID      string
	ResponseDue   time.Time
	ResolutionDue time.Time
}

// ComputeDeadlines adds the policy hours to the creation instant. Deadlines are
// wall-clock; there is no business-hours calendar.
func ComputeDeadlines(createdAt time.Time, policy SLAPolicy) SLADeadlines {
	return SLADeadlines{
		PolicyID:      policy.ID,
		ResponseDue:   createdAt.Add(time.Duration(policy.ResponseTimeHours) * time.Hour),
		ResolutionDue: createdAt.Add(time.Duration(policy.ResolutionTimeHours) * time.Hour),
	}
}

// BreachFlags is the evaluator output.
type BreachFlags struct {
	ResponseBreached   bool
	ResolutionBreached bool
}

// EvaluateBreaches decides both breach flags at now.
//
// The response flag never reverts once set. The resolution flag is recomputed
// from scratch and is forced false while the ticket sits in a terminal status,
// even if it was breached before resolving.
func EvaluateBreaches(sla TicketSLA, status TicketStatus, now time.Time) BreachFlags {
	flags := BreachFlags{ResponseBreached: sla.ResponseBreached}
	if !flags.ResponseBreached && sla.ResponseDue != nil && now.After(*sla.ResponseDue) {
		flags.ResponseBreached = true
	}
	if !status.IsTerminal() && sla.ResolutionDue != nil && now.After(*sla.ResolutionDue) {
		flags.ResolutionBreached = true
	}
	return flags
}

// Changed reports whether flags differ from the stored values.
func (f BreachFlags) Changed(sla TicketSLA) bool {
	return f.ResponseBreached != sla.ResponseBreached || f.ResolutionBreached != sla.ResolutionBreached
}

// SLAState is a display state derived from the stored SLA columns.
type SLAState string

const (
	SLAStateNone               SLAState = "NONE"
	SLAStatePending            SLAState = "PENDING"
	SLAStateResponded          SLAState = "RESPONDED"
	SLAStateResponseBreached   SLAState = "RESPONSE_BREACHED"
	SLAStateResolutionBreached SLAState = "RESOLUTION_BREACHED"
	SLAStateMet                SLAState = "MET"
)

// DeriveSLAState folds the SLA columns and ticket status into one label.
func DeriveSLAState(sla TicketSLA, status TicketStatus) SLAState {
	switch {
	case !sla.Tracked():
		return SLAStateNone
	case sla.ResolutionBreached:
		return SLAStateResolutionBreached
	case sla.ResponseBreached:
		return SLAStateResponseBreached
	case status.IsTerminal():
		return SLAStateMet
	case sla.FirstResponseAt != nil:
		return SLAStateResponded
	default:
		return SLAStatePending
	}
}

// TicketSLAMetrics is the per-ticket SLA view served to staff.
type TicketSLAMetrics struct {
	TicketID                string
	PolicyID                string
	Priority                TicketPriority
	Status                  TicketStatus
	State                   SLAState
	ResponseDue             *time.Time
	ResolutionDue           *time.Time
	FirstResponseAt         *time.Time
	ResponseBreached        bool
	ResolutionBreached      bool
	ResponseTimeHours       *float64
	ResponseRemainingMins   *float64
	ResolutionRemainingMins *float64
}

// BuildTicketSLAMetrics derives the metrics view at now.
func BuildTicketSLAMetrics(ticket Ticket, now time.Time) TicketSLAMetrics {
	m := TicketSLAMetrics{
		TicketID:           ticket.ID,
		Priority:           ticket.Priority,
		Status:             ticket.Status,
		State:              DeriveSLAState(ticket.SLA, ticket.Status),
		ResponseDue:        ticket.SLA.ResponseDue,
		ResolutionDue:      ticket.SLA.ResolutionDue,
		FirstResponseAt:    ticket.SLA.FirstResponseAt,
		ResponseBreached:   ticket.SLA.ResponseBreached,
		ResolutionBreached: ticket.SLA.ResolutionBreached,
	}
	if ticket.SLA.PolicyID != nil {
		m.PolicyID = *ticket.SLA.PolicyID
	}
	if ticket.SLA.FirstResponseAt != nil {
		hours := ticket.SLA.FirstResponseAt.Sub(ticket.CreatedAt).Hours()
		m.ResponseTimeHours = &hours
	} else if ticket.SLA.ResponseDue != nil {
		mins := ticket.SLA.ResponseDue.Sub(now).Minutes()
		m.ResponseRemainingMins = &mins
	}
	if !ticket.Status.IsTerminal() && ticket.SLA.ResolutionDue != nil {
		mins := ticket.SLA.ResolutionDue.Sub(now).Minutes()
		m.ResolutionRemainingMins = &mins
	}
	return m
}
