package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SLARepository writes the sla_* columns of the tickets table.
type SLARepository interface {
	// SetDeadlines stamps the policy and due timestamps. It reports false when
	// the ticket already carries a different policy.
	SetDeadlines(ctx context.Context, ticketID string, deadlines domain.SLADeadlines) (bool, error)
	// RecordFirstResponse sets sla_first_response_at once and ORs in a response
	// breach if at is past the response due time. It reports false when a first
	// response was already recorded.
	RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (bool, error)
	UpdateBreachFlags(ctx context.Context, ticketID string, flags domain.BreachFlags) error
	// ListOpenTracked returns non-terminal tickets that carry a policy, oldest first.
	ListOpenTracked(ctx context.Context) ([]domain.Ticket, error)
}

type slaRepository struct {
	pool *pgxpool.Pool
}

// NewSLARepository builds the repository.
func NewSLARepository(pool *pgxpool.Pool) SLARepository {
	return &slaRepository{pool: pool}
}

func (r *slaRepository) SetDeadlines(ctx context.Context, ticketID string, d domain.SLADeadlines) (bool, error) {
	const query = `
        UPDATE tickets
        SET sla_policy_id=$1, sla_response_due=$2, sla_resolution_due=$3, updated_at=NOW()
        WHERE id=$4 AND (sla_policy_id IS NULL OR sla_policy_id=$1)`
	cmd, err := r.pool.Exec(ctx, query, d.PolicyID, d.ResponseDue, d.ResolutionDue, ticketID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *slaRepository) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets
        SET sla_first_response_at=$1,
            sla_response_breached = sla_response_breached OR (sla_response_due IS NOT NULL AND $1 > sla_response_due),
            updated_at=NOW()
        WHERE id=$2 AND sla_first_response_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, ticketID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *slaRepository) UpdateBreachFlags(ctx context.Context, ticketID string, flags domain.BreachFlags) error {
	const query = `
        UPDATE tickets SET sla_response_breached=$1, sla_resolution_breached=$2, updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, flags.ResponseBreached, flags.ResolutionBreached, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaRepository) ListOpenTracked(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE sla_policy_id IS NOT NULL AND status <> ALL($1)
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, terminalStatusNames())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func terminalStatusNames() []string {
	names := make([]string, len(domain.TerminalStatuses))
	for i, s := range domain.TerminalStatuses {
		names[i] = string(s)
	}
	return names
}
