package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Policies is an in-memory SLAPolicyRepository that enforces one active
// policy per priority the way the partial unique index does.
type Policies struct {
	mu   sync.Mutex
	byID map[string]domain.SLAPolicy
	seq  int

	// Err, when set, is returned by every call.
	Err error
	// ActiveLookups counts GetActiveByPriority calls.
	ActiveLookups int
}

var _ repository.SLAPolicyRepository = (*Policies)(nil)

// NewPolicies seeds the store.
func NewPolicies(seed ...domain.SLAPolicy) *Policies {
	f := &Policies{byID: map[string]domain.SLAPolicy{}}
	for _, p := range seed {
		f.byID[p.ID] = p
	}
	return f
}

// Len returns the number of stored policies.
func (f *Policies) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *Policies) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]domain.SLAPolicy, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *Policies) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *Policies) GetActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ActiveLookups++
	if f.Err != nil {
		return nil, f.Err
	}
	for _, p := range f.byID {
		if p.Priority == priority && p.IsActive {
			return &p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *Policies) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if policy.IsActive && f.activeConflict(policy.Priority, "") {
		return repository.ErrDuplicate
	}
	f.seq++
	policy.ID = fmt.Sprintf("policy-%d", f.seq)
	f.byID[policy.ID] = *policy
	return nil
}

func (f *Policies) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.byID[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	if policy.IsActive && f.activeConflict(policy.Priority, policy.ID) {
		return repository.ErrDuplicate
	}
	f.byID[policy.ID] = *policy
	return nil
}

func (f *Policies) activeConflict(priority domain.TicketPriority, exceptID string) bool {
	for id, p := range f.byID {
		if id != exceptID && p.Priority == priority && p.IsActive {
			return true
		}
	}
	return false
}
