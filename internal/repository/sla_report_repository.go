package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SLAReportRepository runs the aggregate queries behind the SLA reports.
// Only tickets carrying a policy are counted.
type SLAReportRepository interface {
	DashboardCounts(ctx context.Context, departmentID *string) (domain.SLACounts, error)
	// ListAtRisk returns non-terminal tickets with an unbreached deadline at or before until.
	ListAtRisk(ctx context.Context, until time.Time) ([]domain.AtRiskTicket, error)
	ComplianceCounts(ctx context.Context, groupBy domain.ComplianceGroupBy, since time.Time) ([]domain.ComplianceRow, error)
	BreachTrend(ctx context.Context, since time.Time) ([]domain.SLATrendPoint, error)
}

type slaReportRepository struct {
	pool *pgxpool.Pool
}

// NewSLAReportRepository builds the repository.
func NewSLAReportRepository(pool *pgxpool.Pool) SLAReportRepository {
	return &slaReportRepository{pool: pool}
}

// countColumns expands to the six SLACounts columns; $1 is the terminal status list.
const countColumns = `
    COUNT(*),
    COUNT(*) FILTER (WHERE t.sla_response_breached),
    COUNT(*) FILTER (WHERE t.sla_resolution_breached),
    COUNT(*) FILTER (WHERE t.sla_response_breached OR t.sla_resolution_breached),
    COUNT(*) FILTER (WHERE t.status = ANY($1)),
    (AVG(EXTRACT(EPOCH FROM (t.sla_first_response_at - t.created_at)) / 3600)
        FILTER (WHERE t.sla_first_response_at IS NOT NULL))::float8`

func countTargets(c *domain.SLACounts) []any {
	return []any{&c.Total, &c.ResponseBreached, &c.ResolutionBreached, &c.AnyBreached, &c.Resolved, &c.AvgResponseHours}
}

func (r *slaReportRepository) DashboardCounts(ctx context.Context, departmentID *string) (domain.SLACounts, error) {
	query := `SELECT ` + countColumns + ` FROM tickets t WHERE t.sla_policy_id IS NOT NULL`
	args := []any{terminalStatusNames()}
	if departmentID != nil {
		args = append(args, *departmentID)
		query += fmt.Sprintf(" AND t.department_id=$%d", len(args))
	}

	var counts domain.SLACounts
	if err := r.pool.QueryRow(ctx, query, args...).Scan(countTargets(&counts)...); err != nil {
		return domain.SLACounts{}, err
	}
	return counts, nil
}

func (r *slaReportRepository) ListAtRisk(ctx context.Context, until time.Time) ([]domain.AtRiskTicket, error) {
	const query = `
        SELECT * FROM (
            SELECT id, external_key, title, department_id, assignee_staff_id, status, priority,
                   sla_response_due, sla_resolution_due,
                   (sla_first_response_at IS NULL AND NOT sla_response_breached
                        AND sla_response_due IS NOT NULL AND sla_response_due <= $2) AS response_at_risk,
                   (NOT sla_resolution_breached
                        AND sla_resolution_due IS NOT NULL AND sla_resolution_due <= $2) AS resolution_at_risk
            FROM tickets
            WHERE sla_policy_id IS NOT NULL AND status <> ALL($1)
        ) s
        WHERE response_at_risk OR resolution_at_risk`
	rows, err := r.pool.Query(ctx, query, terminalStatusNames(), until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AtRiskTicket
	for rows.Next() {
		var t domain.AtRiskTicket
		if err := rows.Scan(
			&t.TicketID,
			&t.ExternalKey,
			&t.Title,
			&t.DepartmentID,
			&t.AssigneeID,
			&t.Status,
			&t.Priority,
			&t.ResponseDue,
			&t.ResolutionDue,
			&t.ResponseAtRisk,
			&t.ResolutionAtRisk,
		); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *slaReportRepository) ComplianceCounts(ctx context.Context, groupBy domain.ComplianceGroupBy, since time.Time) ([]domain.ComplianceRow, error) {
	query, err := complianceQuery(groupBy)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, terminalStatusNames(), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ComplianceRow
	for rows.Next() {
		var row domain.ComplianceRow
		targets := append([]any{&row.GroupID, &row.GroupName}, countTargets(&row.SLACounts)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// complianceQuery builds the grouped counts query. Agent grouping left-joins
// staff so unassigned tickets come back as one row with empty id and name.
func complianceQuery(groupBy domain.ComplianceGroupBy) (string, error) {
	var join string
	switch groupBy {
	case domain.ComplianceByDepartment:
		join = `JOIN departments g ON g.id = t.department_id`
	case domain.ComplianceByAgent:
		join = `LEFT JOIN staff_members g ON g.id = t.assignee_staff_id`
	default:
		return "", fmt.Errorf("unsupported compliance grouping %q", groupBy)
	}
	return `SELECT COALESCE(g.id::text, ''), COALESCE(g.name, ''), ` + countColumns + `
        FROM tickets t ` + join + `
        WHERE t.sla_policy_id IS NOT NULL AND t.created_at >= $2
        GROUP BY g.id, g.name
        ORDER BY g.name NULLS LAST`, nil
}

// breachTrendQuery buckets by UTC day regardless of the session time zone.
const breachTrendQuery = `
        SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AT TIME ZONE 'UTC' AS day,
               COUNT(*),
               COUNT(*) FILTER (WHERE sla_response_breached),
               COUNT(*) FILTER (WHERE sla_resolution_breached)
        FROM tickets
        WHERE sla_policy_id IS NOT NULL AND created_at >= $1
        GROUP BY day
        ORDER BY day`

func (r *slaReportRepository) BreachTrend(ctx context.Context, since time.Time) ([]domain.SLATrendPoint, error) {
	rows, err := r.pool.Query(ctx, breachTrendQuery, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SLATrendPoint, error) {
		var p domain.SLATrendPoint
		err := row.Scan(&p.Day, &p.Created, &p.ResponseBreached, &p.ResolutionBreached)
		return p, err
	})
}
