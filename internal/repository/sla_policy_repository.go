package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SLAPolicyRepository persists priority-keyed SLA policies. At most one policy
// per priority may be active; violations surface as ErrDuplicate.
type SLAPolicyRepository interface {
	List(ctx context.Context) ([]domain.SLAPolicy, error)
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	GetActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds the repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const slaPolicyColumns = `id, name, priority, response_time_hours, resolution_time_hours, is_active, created_at, updated_at`

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT ` + slaPolicyColumns + `
        FROM sla_policies
        ORDER BY CASE priority
            WHEN 'CRITICAL' THEN 1
            WHEN 'HIGH' THEN 2
            WHEN 'MEDIUM' THEN 3
            WHEN 'LOW' THEN 4
            ELSE 5 END, name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	return scanPolicy(r.pool.QueryRow(ctx, `SELECT `+slaPolicyColumns+` FROM sla_policies WHERE id=$1`, id))
}

func (r *slaPolicyRepository) GetActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	const query = `SELECT ` + slaPolicyColumns + ` FROM sla_policies WHERE priority=$1 AND is_active = TRUE`
	return scanPolicy(r.pool.QueryRow(ctx, query, priority))
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, priority, response_time_hours, resolution_time_hours, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseTimeHours,
		policy.ResolutionTimeHours,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
	return translateWriteErr(err)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies
        SET name=$1, response_time_hours=$2, resolution_time_hours=$3, is_active=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.ResponseTimeHours,
		policy.ResolutionTimeHours,
		policy.IsActive,
		policy.ID,
	).Scan(&policy.UpdatedAt)
	return translateWriteErr(err)
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var p domain.SLAPolicy
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Priority,
		&p.ResponseTimeHours,
		&p.ResolutionTimeHours,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
