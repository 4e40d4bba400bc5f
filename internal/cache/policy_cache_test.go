package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/repotest"
)

type mapStore struct {
	data   map[string][]byte
	getErr error
}

func newMapStore() *mapStore { return &mapStore{data: map[string][]byte{}} }

func (s *mapStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *mapStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.data[key] = value
	return nil
}

func (s *mapStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

var highPolicy = domain.SLAPolicy{
	ID:                  "p-high",
	Name:                "High",
	Priority:            domain.TicketPriorityHigh,
	ResponseTimeHours:   4,
	ResolutionTimeHours: 24,
	IsActive:            true,
}

func TestPolicyRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := repotest.NewPolicies(highPolicy)
	repo := NewPolicyRepository(backing, newMapStore(), time.Minute, nil)

	for i := 0; i < 3; i++ {
		p, err := repo.GetActiveByPriority(ctx, domain.TicketPriorityHigh)
		if err != nil {
			t.Fatalf("GetActiveByPriority failed: %v", err)
		}
		if p.ID != "p-high" || p.ResponseTimeHours != 4 {
			t.Errorf("policy = %+v, want p-high with 4h response", p)
		}
	}
	if backing.ActiveLookups != 1 {
		t.Errorf("backing lookups = %d, want 1", backing.ActiveLookups)
	}
}

func TestPolicyRepository_UpdateInvalidates(t *testing.T) {
	ctx := context.Background()
	backing := repotest.NewPolicies(highPolicy)
	repo := NewPolicyRepository(backing, newMapStore(), time.Minute, nil)

	if _, err := repo.GetActiveByPriority(ctx, domain.TicketPriorityHigh); err != nil {
		t.Fatalf("warm cache failed: %v", err)
	}

	updated := highPolicy
	updated.ResponseTimeHours = 2
	if err := repo.Update(ctx, &updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	p, err := repo.GetActiveByPriority(ctx, domain.TicketPriorityHigh)
	if err != nil {
		t.Fatalf("GetActiveByPriority failed: %v", err)
	}
	if p.ResponseTimeHours != 2 {
		t.Errorf("ResponseTimeHours = %d, want 2 after update", p.ResponseTimeHours)
	}
}

func TestPolicyRepository_MissIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	repo := NewPolicyRepository(repotest.NewPolicies(), store, time.Minute, nil)

	_, err := repo.GetActiveByPriority(ctx, domain.TicketPriorityLow)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("err = %v, want pgx.ErrNoRows", err)
	}
	if len(store.data) != 0 {
		t.Errorf("store has %d entries, want none", len(store.data))
	}
}

func TestPolicyRepository_StoreFailureFallsThrough(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("connection refused")
	repo := NewPolicyRepository(repotest.NewPolicies(highPolicy), store, time.Minute, nil)

	p, err := repo.GetActiveByPriority(context.Background(), domain.TicketPriorityHigh)
	if err != nil {
		t.Fatalf("GetActiveByPriority failed: %v", err)
	}
	if p.ID != "p-high" {
		t.Errorf("ID = %q, want %q", p.ID, "p-high")
	}
}

func TestPolicyRepository_ZeroTTLDisablesCache(t *testing.T) {
	backing := repotest.NewPolicies(highPolicy)
	store := newMapStore()
	repo := NewPolicyRepository(backing, store, 0, nil)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetActiveByPriority(context.Background(), domain.TicketPriorityHigh); err != nil {
			t.Fatalf("GetActiveByPriority failed: %v", err)
		}
	}
	if backing.ActiveLookups != 2 {
		t.Errorf("backing lookups = %d, want 2", backing.ActiveLookups)
	}
	if len(store.data) != 0 {
		t.Error("store written with caching disabled")
	}
}
