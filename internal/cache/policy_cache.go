package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const policyKeyPrefix = "sla:policy:active:"

// PolicyRepository wraps an SLAPolicyRepository with a read-through cache of
// the active policy per priority. Writes invalidate the affected priority.
// Cache failures are logged and fall through to the wrapped repository.
type PolicyRepository struct {
	next   repository.SLAPolicyRepository
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

var _ repository.SLAPolicyRepository = (*PolicyRepository)(nil)

// NewPolicyRepository builds the decorator. A zero ttl disables caching.
func NewPolicyRepository(next repository.SLAPolicyRepository, store Store, ttl time.Duration, logger *zap.Logger) *PolicyRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyRepository{next: next, store: store, ttl: ttl, logger: logger}
}

type cachedPolicy struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Priority            string    `json:"priority"`
	ResponseTimeHours   int       `json:"response_time_hours"`
	ResolutionTimeHours int       `json:"resolution_time_hours"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func policyKey(priority domain.TicketPriority) string {
	return policyKeyPrefix + string(priority)
}

func (r *PolicyRepository) enabled() bool {
	return r.store != nil && r.ttl > 0
}

func (r *PolicyRepository) GetActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	if !r.enabled() {
		return r.next.GetActiveByPriority(ctx, priority)
	}

	raw, err := r.store.Get(ctx, policyKey(priority))
	switch {
	case err == nil:
		var cp cachedPolicy
		if jsonErr := json.Unmarshal(raw, &cp); jsonErr == nil {
			return cp.toDomain(), nil
		}
		r.logger.Warn("discarding corrupt policy cache entry", zap.String("priority", string(priority)))
	case !errors.Is(err, ErrMiss):
		r.logger.Warn("policy cache read failed", zap.String("priority", string(priority)), zap.Error(err))
	}

	policy, err := r.next.GetActiveByPriority(ctx, priority)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(fromDomain(policy)); err == nil {
		if err := r.store.Set(ctx, policyKey(priority), raw, r.ttl); err != nil {
			r.logger.Warn("policy cache write failed", zap.String("priority", string(priority)), zap.Error(err))
		}
	}
	return policy, nil
}

func (r *PolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	return r.next.List(ctx)
}

func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	return r.next.GetByID(ctx, id)
}

func (r *PolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	if err := r.next.Create(ctx, policy); err != nil {
		return err
	}
	r.invalidate(ctx, policy.Priority)
	return nil
}

func (r *PolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	if err := r.next.Update(ctx, policy); err != nil {
		return err
	}
	r.invalidate(ctx, policy.Priority)
	return nil
}

func (r *PolicyRepository) invalidate(ctx context.Context, priority domain.TicketPriority) {
	if !r.enabled() {
		return
	}
	if err := r.store.Del(ctx, policyKey(priority)); err != nil {
		r.logger.Warn("policy cache invalidation failed", zap.String("priority", string(priority)), zap.Error(err))
	}
}

func fromDomain(p *domain.SLAPolicy) cachedPolicy {
	return cachedPolicy{
		ID:                  p.ID,
		Name:                p.Name,
		Priority:            string(p.Priority),
		ResponseTimeHours:   p.ResponseTimeHours,
		ResolutionTimeHours: p.ResolutionTimeHours,
		IsActive:            p.IsActive,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (c cachedPolicy) toDomain() *domain.SLAPolicy {
	return &domain.SLAPolicy{
		ID:                  c.ID,
		Name:                c.Name,
		Priority:            domain.TicketPriority(c.Priority),
		ResponseTimeHours:   c.ResponseTimeHours,
		ResolutionTimeHours: c.ResolutionTimeHours,
		IsActive:            c.IsActive,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}
