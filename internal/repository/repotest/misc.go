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

// History records audit entries in insertion order.
type History struct {
	mu      sync.Mutex
	Entries []domain.TicketHistory
	Err     error
}

var _ repository.TicketHistoryRepository = (*History)(nil)

func (f *History) Create(ctx context.Context, entry *domain.TicketHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	entry.ID = fmt.Sprintf("history-%d", len(f.Entries)+1)
	f.Entries = append(f.Entries, *entry)
	return nil
}

func (f *History) ListByTicket(ctx context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketHistory
	for _, e := range f.Entries {
		if e.TicketID != ticketID {
			continue
		}
		if len(types) > 0 && !containsChange(types, e.ChangeType) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// OfType returns all entries with the given change type.
func (f *History) OfType(ct domain.TicketChangeType) []domain.TicketHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketHistory
	for _, e := range f.Entries {
		if e.ChangeType == ct {
			out = append(out, e)
		}
	}
	return out
}

func containsChange(list []domain.TicketChangeType, ct domain.TicketChangeType) bool {
	for _, c := range list {
		if c == ct {
			return true
		}
	}
	return false
}

// Messages stores thread messages.
type Messages struct {
	mu   sync.Mutex
	Msgs []domain.TicketMessage
}

var _ repository.TicketMessageRepository = (*Messages)(nil)

func (f *Messages) Create(ctx context.Context, msg *domain.TicketMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = fmt.Sprintf("msg-%d", len(f.Msgs)+1)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	f.Msgs = append(f.Msgs, *msg)
	return nil
}

func (f *Messages) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketMessage
	for _, m := range f.Msgs {
		if m.TicketID != ticketID {
			continue
		}
		if !includeInternal && m.MessageType == domain.MessageTypeInternalNote {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Users stores end-users keyed by id.
type Users struct {
	mu   sync.Mutex
	byID map[string]domain.User
}

var _ repository.UserRepository = (*Users)(nil)

// NewUsers seeds the store.
func NewUsers(seed ...domain.User) *Users {
	f := &Users{byID: map[string]domain.User{}}
	for _, u := range seed {
		f.byID[u.ID] = u
	}
	return f
}

func (f *Users) Create(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = fmt.Sprintf("user-%d", len(f.byID)+1)
	user.CreatedAt = time.Now()
	f.byID[user.ID] = *user
	return nil
}

func (f *Users) GetByID(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (f *Users) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// Staff stores staff members keyed by id.
type Staff struct {
	mu   sync.Mutex
	byID map[string]domain.StaffMember
}

var _ repository.StaffRepository = (*Staff)(nil)

// NewStaff seeds the store.
func NewStaff(seed ...domain.StaffMember) *Staff {
	f := &Staff{byID: map[string]domain.StaffMember{}}
	for _, s := range seed {
		f.byID[s.ID] = s
	}
	return f
}

func (f *Staff) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (f *Staff) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.Email == email {
			return &s, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *Staff) List(ctx context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StaffMember
	for _, s := range f.byID {
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		}
		if filter.DepartmentID != nil && !s.InDepartment(*filter.DepartmentID) {
			continue
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Departments stores departments keyed by id.
type Departments struct {
	byID map[string]domain.Department
}

var _ repository.DepartmentRepository = (*Departments)(nil)

// NewDepartments seeds the store.
func NewDepartments(seed ...domain.Department) *Departments {
	f := &Departments{byID: map[string]domain.Department{}}
	for _, d := range seed {
		f.byID[d.ID] = d
	}
	return f
}

func (f *Departments) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

func (f *Departments) ListActive(ctx context.Context) ([]domain.Department, error) {
	var out []domain.Department
	for _, d := range f.byID {
		if d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Reports returns canned aggregates and records the arguments it was called with.
// ListAtRisk filters Tickets through domain.NewAtRiskTicket, then appends the
// canned AtRisk rows.
type Reports struct {
	Counts  domain.SLACounts
	Tickets []domain.Ticket
	AtRisk  []domain.AtRiskTicket
	Rows    []domain.ComplianceRow
	Trend   []domain.SLATrendPoint
	Err     error

	LastDepartmentID *string
	LastUntil        time.Time
	LastGroupBy      domain.ComplianceGroupBy
	LastSince        time.Time
}

var _ repository.SLAReportRepository = (*Reports)(nil)

func (f *Reports) DashboardCounts(ctx context.Context, departmentID *string) (domain.SLACounts, error) {
	f.LastDepartmentID = departmentID
	return f.Counts, f.Err
}

func (f *Reports) ListAtRisk(ctx context.Context, until time.Time) ([]domain.AtRiskTicket, error) {
	f.LastUntil = until
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.AtRiskTicket
	for _, t := range f.Tickets {
		if row, ok := domain.NewAtRiskTicket(t, until); ok {
			out = append(out, row)
		}
	}
	return append(out, f.AtRisk...), nil
}

func (f *Reports) ComplianceCounts(ctx context.Context, groupBy domain.ComplianceGroupBy, since time.Time) ([]domain.ComplianceRow, error) {
	f.LastGroupBy = groupBy
	f.LastSince = since
	out := append([]domain.ComplianceRow(nil), f.Rows...)
	return out, f.Err
}

func (f *Reports) BreachTrend(ctx context.Context, since time.Time) ([]domain.SLATrendPoint, error) {
	f.LastSince = since
	out := append([]domain.SLATrendPoint(nil), f.Trend...)
	return out, f.Err
}
