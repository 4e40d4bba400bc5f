// Package repotest provides in-memory implementations of the repository
// interfaces for service and handler tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Tickets implements both repository.TicketRepository and repository.SLARepository
// over one map so SLA writes are visible to ticket reads.
type Tickets struct {
	mu   sync.Mutex
	byID map[string]domain.Ticket
	seq  int

	// Now stamps created_at on Create. Defaults to time.Now.
	Now func() time.Time
	// FailFlags makes UpdateBreachFlags fail for the given ticket ids.
	FailFlags map[string]error
	// Err, when set, is returned by every read.
	Err error

	FlagWrites int
}

var (
	_ repository.TicketRepository = (*Tickets)(nil)
	_ repository.SLARepository    = (*Tickets)(nil)
)

// NewTickets returns an empty store.
func NewTickets() *Tickets {
	return &Tickets{byID: map[string]domain.Ticket{}, FailFlags: map[string]error{}}
}

// Put seeds or replaces a ticket.
func (f *Tickets) Put(t domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[t.ID] = t
}

// Snapshot returns the stored ticket for assertions.
func (f *Tickets) Snapshot(id string) (domain.Ticket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	return t, ok
}

func (f *Tickets) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Tickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", f.seq)
	ticket.CreatedAt = f.now()
	ticket.UpdatedAt = ticket.CreatedAt
	f.byID[ticket.ID] = *ticket
	return nil
}

func (f *Tickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	// SLA columns and priority are not written by Update.
	sla, priority := stored.SLA, stored.Priority
	stored = *ticket
	stored.SLA, stored.Priority = sla, priority
	stored.UpdatedAt = f.now()
	f.byID[ticket.ID] = stored
	ticket.UpdatedAt = stored.UpdatedAt
	return nil
}

func (f *Tickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (f *Tickets) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	return f.ListWithFilter(ctx, repository.TicketFilter{RequesterID: &userID, Limit: limit, Offset: offset})
}

func (f *Tickets) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.Ticket
	for _, t := range f.byID {
		if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.DepartmentID != nil && t.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.BreachedOnly && !t.SLA.ResponseBreached && !t.SLA.ResolutionBreached {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Tickets) SetDeadlines(ctx context.Context, ticketID string, d domain.SLADeadlines) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[ticketID]
	if !ok {
		return false, nil
	}
	if t.SLA.PolicyID != nil && *t.SLA.PolicyID != d.PolicyID {
		return false, nil
	}
	policyID, resp, resol := d.PolicyID, d.ResponseDue, d.ResolutionDue
	t.SLA.PolicyID = &policyID
	t.SLA.ResponseDue = &resp
	t.SLA.ResolutionDue = &resol
	f.byID[ticketID] = t
	return true, nil
}

func (f *Tickets) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[ticketID]
	if !ok || t.SLA.FirstResponseAt != nil {
		return false, nil
	}
	t.SLA.FirstResponseAt = &at
	if t.SLA.ResponseDue != nil && at.After(*t.SLA.ResponseDue) {
		t.SLA.ResponseBreached = true
	}
	f.byID[ticketID] = t
	return true, nil
}

func (f *Tickets) UpdateBreachFlags(ctx context.Context, ticketID string, flags domain.BreachFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailFlags[ticketID]; err != nil {
		return err
	}
	t, ok := f.byID[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.SLA.ResponseBreached = flags.ResponseBreached
	t.SLA.ResolutionBreached = flags.ResolutionBreached
	f.byID[ticketID] = t
	f.FlagWrites++
	return nil
}

func (f *Tickets) ListOpenTracked(ctx context.Context) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.Ticket
	for _, t := range f.byID {
		if t.SLA.Tracked() && !t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
