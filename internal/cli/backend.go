package cli

import (
	"context"
	"fmt"

	"github.com/spec-kit/helpdesk/internal/cache"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

// SLAOperations is the slice of the SLA service the CLI drives.
type SLAOperations interface {
	ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error)
	CheckAllBreaches(ctx context.Context) (service.SweepResult, error)
	CheckBreaches(ctx context.Context, ticketID string) (domain.BreachFlags, error)
}

// ReportQueries is the slice of the report service the CLI drives.
type ReportQueries interface {
	GetTicketsAtRisk(ctx context.Context, hoursWarning int) ([]domain.AtRiskTicket, error)
	GetComplianceReport(ctx context.Context, q service.ComplianceQuery) ([]domain.ComplianceRow, error)
	GetBreachTrend(ctx context.Context, days int) ([]domain.SLATrendPoint, error)
}

// Backend bundles what the commands need plus a release func.
type Backend struct {
	SLA     SLAOperations
	Reports ReportQueries
	Close   func()
}

// BackendFactory opens a Backend for a single command invocation.
type BackendFactory func(ctx context.Context) (*Backend, error)

// ConnectBackend wires the SLA services against Postgres and Redis from the
// environment. Breaches raised by a CLI sweep are published to the same
// notification channel the API uses.
func ConnectBackend(ctx context.Context) (*Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redis := persistence.NewRedis(cfg.Redis, logger)

	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, redis, logger, cfg.Notification).RegisterHandlers()

	slaService := service.NewSLAService(service.SLADependencies{
		PolicyRepo: cache.NewPolicyRepository(
			repository.NewSLAPolicyRepository(pg.Pool),
			cache.NewRedisStore(redis.Client),
			cfg.SLA.PolicyCacheTTL(),
			logger,
		),
		TicketRepo:  repository.NewTicketRepository(pg.Pool),
		SLARepo:     repository.NewSLARepository(pg.Pool),
		HistoryRepo: repository.NewTicketHistoryRepository(pg.Pool),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	return &Backend{
		SLA:     slaService,
		Reports: service.NewSLAReportService(repository.NewSLAReportRepository(pg.Pool), cfg.SLA, nil),
		Close: func() {
			redis.Close()
			pg.Close()
			_ = logger.Sync()
		},
	}, nil
}

func withBackend(factory BackendFactory, fn func(ctx context.Context, b *Backend) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		b, err := factory(ctx)
		if err != nil {
			return err
		}
		if b.Close != nil {
			defer b.Close()
		}
		return fn(ctx, b)
	}
}
