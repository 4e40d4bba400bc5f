package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// SLAService owns SLA policies and the per-ticket deadline and breach state.
type SLAService struct {
	policies   repository.SLAPolicyRepository
	tickets    repository.TicketRepository
	sla        repository.SLARepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	PolicyRepo  repository.SLAPolicyRepository
	TicketRepo  repository.TicketRepository
	SLARepo     repository.SLARepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{
		policies:   deps.PolicyRepo,
		tickets:    deps.TicketRepo,
		sla:        deps.SLARepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clockOrNow(deps.Clock),
	}
}

// PolicyCreateInput describes a new policy.
type PolicyCreateInput struct {
	Name                string
	Priority            domain.TicketPriority
	ResponseTimeHours   int
	ResolutionTimeHours int
}

// PolicyUpdateInput carries the mutable policy fields; nil means unchanged.
type PolicyUpdateInput struct {
	Name                *string
	ResponseTimeHours   *int
	ResolutionTimeHours *int
	IsActive            *bool
}

// SweepResult tallies one CheckAllBreaches run.
type SweepResult struct {
	Checked            int
	ResponseBreached   int
	ResolutionBreached int
	NewlyBreached      int
	Failed             int
	Duration           time.Duration
}

func (s *SLAService) ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

func (s *SLAService) GetPolicy(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "sla policy", map[string]any{"policy_id": id})
	}
	return policy, nil
}

// GetPolicyByPriority returns the active policy for priority.
func (s *SLAService) GetPolicyByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	policy, err := s.policies.GetActiveByPriority(ctx, priority)
	if err != nil {
		return nil, notFoundOr(err, "sla policy", map[string]any{"priority": priority})
	}
	return policy, nil
}

// CreatePolicy inserts an active policy. A second active policy for the same
// priority is rejected with CONFLICT.
func (s *SLAService) CreatePolicy(ctx context.Context, input PolicyCreateInput) (*domain.SLAPolicy, error) {
	policy := &domain.SLAPolicy{
		Name:                strings.TrimSpace(input.Name),
		Priority:            input.Priority,
		ResponseTimeHours:   input.ResponseTimeHours,
		ResolutionTimeHours: input.ResolutionTimeHours,
		IsActive:            true,
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("an active sla policy already exists for this priority",
				map[string]any{"priority": policy.Priority})
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("sla policy created",
		zap.String("policy_id", policy.ID),
		zap.String("priority", string(policy.Priority)))
	return policy, nil
}

// UpdatePolicy applies the non-nil fields of input.
func (s *SLAService) UpdatePolicy(ctx context.Context, id string, input PolicyUpdateInput) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "sla policy", map[string]any{"policy_id": id})
	}
	if input.Name != nil {
		policy.Name = strings.TrimSpace(*input.Name)
	}
	if input.ResponseTimeHours != nil {
		policy.ResponseTimeHours = *input.ResponseTimeHours
	}
	if input.ResolutionTimeHours != nil {
		policy.ResolutionTimeHours = *input.ResolutionTimeHours
	}
	if input.IsActive != nil {
		policy.IsActive = *input.IsActive
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	if err := s.policies.Update(ctx, policy); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.NewConflict("an active sla policy already exists for this priority",
				map[string]any{"priority": policy.Priority})
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

func validatePolicy(p *domain.SLAPolicy) error {
	details := map[string]any{}
	if p.Name == "" {
		details["name"] = "required"
	}
	if !p.Priority.Valid() {
		details["priority"] = "must be one of LOW, MEDIUM, HIGH, CRITICAL"
	}
	if p.ResponseTimeHours <= 0 {
		details["response_time_hours"] = "must be positive"
	}
	if p.ResolutionTimeHours <= 0 {
		details["resolution_time_hours"] = "must be positive"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla policy", details)
	}
	return nil
}

// InitializeSLA stamps deadlines from the active policy for priority. It is
// best effort: failures are logged and never returned.
func (s *SLAService) InitializeSLA(ctx context.Context, ticketID string, priority domain.TicketPriority) {
	log := s.logger.With(zap.String("ticket_id", ticketID), zap.String("priority", string(priority)))

	policy, err := s.policies.GetActiveByPriority(ctx, priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Info("no active sla policy for priority; ticket left untracked")
			return
		}
		log.Error("sla policy lookup failed", zap.Error(err))
		return
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		log.Error("sla initialization could not load ticket", zap.Error(err))
		return
	}

	deadlines := domain.ComputeDeadlines(ticket.CreatedAt, *policy)
	applied, err := s.sla.SetDeadlines(ctx, ticketID, deadlines)
	if err != nil {
		log.Error("sla initialization failed", zap.Error(err))
		return
	}
	if !applied {
		log.Warn("ticket already bound to a different sla policy", zap.String("policy_id", policy.ID))
		return
	}

	s.recordHistory(ctx, ticketID, domain.ChangeTypeSLAInit, nil, map[string]any{
		"policy_id":      policy.ID,
		"response_due":   deadlines.ResponseDue,
		"resolution_due": deadlines.ResolutionDue,
	})
	log.Debug("sla initialized", zap.String("policy_id", policy.ID), zap.Time("response_due", deadlines.ResponseDue))
}

// RecordFirstResponse sets the first-response timestamp once, marking the
// response as breached if it arrived late. Repeated calls are no-ops.
func (s *SLAService) RecordFirstResponse(ctx context.Context, ticketID string) {
	at := s.now()
	recorded, err := s.sla.RecordFirstResponse(ctx, ticketID, at)
	if err != nil {
		s.logger.Error("recording first response failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	if !recorded {
		return
	}
	s.recordHistory(ctx, ticketID, domain.ChangeTypeFirstResponse, nil, map[string]any{"first_response_at": at})
}

// CheckBreaches re-evaluates one ticket and persists flags that changed.
func (s *SLAService) CheckBreaches(ctx context.Context, ticketID string) (domain.BreachFlags, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return domain.BreachFlags{}, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	flags, _, err := s.evaluate(ctx, ticket)
	return flags, err
}

// CheckAllBreaches evaluates every open ticket that carries a policy, one at a
// time. Per-ticket failures are counted and logged; the sweep stops early only
// when ctx is done.
func (s *SLAService) CheckAllBreaches(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	var result SweepResult

	tickets, err := s.sla.ListOpenTracked(ctx)
	if err != nil {
		return result, apperrors.MapError(err)
	}

	for i := range tickets {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(started)
			s.metrics.ObserveSweep(result.Duration, result.Checked, result.Failed)
			return result, err
		}
		flags, newly, err := s.evaluate(ctx, &tickets[i])
		if err != nil {
			result.Failed++
			s.logger.Warn("breach check failed", zap.String("ticket_id", tickets[i].ID), zap.Error(err))
			continue
		}
		result.Checked++
		if flags.ResponseBreached {
			result.ResponseBreached++
		}
		if flags.ResolutionBreached {
			result.ResolutionBreached++
		}
		if newly {
			result.NewlyBreached++
		}
	}

	result.Duration = time.Since(started)
	s.metrics.ObserveSweep(result.Duration, result.Checked, result.Failed)
	s.logger.Info("sla sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("response_breached", result.ResponseBreached),
		zap.Int("resolution_breached", result.ResolutionBreached),
		zap.Int("newly_breached", result.NewlyBreached),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// GetTicketSLAMetrics re-evaluates the ticket and returns its SLA view, or nil
// when the ticket has no policy.
func (s *SLAService) GetTicketSLAMetrics(ctx context.Context, ticketID string) (*domain.TicketSLAMetrics, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !ticket.SLA.Tracked() {
		return nil, nil
	}
	flags, _, err := s.evaluate(ctx, ticket)
	if err != nil {
		return nil, err
	}
	ticket.SLA.ResponseBreached = flags.ResponseBreached
	ticket.SLA.ResolutionBreached = flags.ResolutionBreached

	metrics := domain.BuildTicketSLAMetrics(*ticket, s.now())
	return &metrics, nil
}

// evaluate applies the breach rules to ticket at the current instant and
// writes the flags only if they changed. newly reports a flag turning true.
func (s *SLAService) evaluate(ctx context.Context, ticket *domain.Ticket) (flags domain.BreachFlags, newly bool, err error) {
	flags = domain.EvaluateBreaches(ticket.SLA, ticket.Status, s.now())
	if !flags.Changed(ticket.SLA) {
		return flags, false, nil
	}
	if err := s.sla.UpdateBreachFlags(ctx, ticket.ID, flags); err != nil {
		return domain.BreachFlags{}, false, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}

	newResponse := flags.ResponseBreached && !ticket.SLA.ResponseBreached
	newResolution := flags.ResolutionBreached && !ticket.SLA.ResolutionBreached
	if newResponse || newResolution {
		s.onBreach(ctx, ticket, newResponse, newResolution)
	}
	return flags, newResponse || newResolution, nil
}

func (s *SLAService) onBreach(ctx context.Context, ticket *domain.Ticket, response, resolution bool) {
	priority := string(ticket.Priority)
	if response {
		s.metrics.RecordBreach("response", priority)
	}
	if resolution {
		s.metrics.RecordBreach("resolution", priority)
	}
	s.logger.Info("sla breached",
		zap.String("ticket_id", ticket.ID),
		zap.String("priority", priority),
		zap.Bool("response", response),
		zap.Bool("resolution", resolution))

	s.recordHistory(ctx, ticket.ID, domain.ChangeTypeSLABreach,
		map[string]any{
			"response_breached":   ticket.SLA.ResponseBreached,
			"resolution_breached": ticket.SLA.ResolutionBreached,
		},
		map[string]any{
			"response_breached":   ticket.SLA.ResponseBreached || response,
			"resolution_breached": resolution,
		})

	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventSLABreached,
		TicketID: ticket.ID,
		Actor:    events.SystemActor,
		Payload: events.SLABreachedPayload{
			Priority:           ticket.Priority,
			ResponseBreached:   response,
			ResolutionBreached: resolution,
			ResponseDue:        ticket.SLA.ResponseDue,
			ResolutionDue:      ticket.SLA.ResolutionDue,
		},
	})
}

func (s *SLAService) recordHistory(ctx context.Context, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.AuthorTypeSystem,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("sla history write failed",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}
