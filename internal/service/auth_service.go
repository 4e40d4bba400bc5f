package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// LoginLimiter counts failed logins per key within a sliding window.
// persistence.Redis satisfies it.
type LoginLimiter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Session is an issued access token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	limiter    LoginLimiter
	logger     *zap.Logger
	bcryptCost int
	maxFailed  int
	window     time.Duration
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo  repository.UserRepository
	StaffRepo repository.StaffRepository
	Limiter   LoginLimiter
	Logger    *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		staff:      deps.StaffRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.AccessTokenTTLMinutes)*time.Minute, cfg.App.Name),
		limiter:    deps.Limiter,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
		maxFailed:  cfg.Auth.MaxFailedLogins,
		window:     cfg.Auth.FailedLoginWindow(),
	}
}

// RegisterUser creates a new end-user account and signs them in.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string) (*domain.User, Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		details["email"] = "invalid"
	}
	if len(details) > 0 {
		return nil, Session{}, apperrors.NewValidationError("invalid registration", details)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, Session{}, apperrors.NewValidationError("invalid registration", map[string]any{"password": "too short"})
		}
		return nil, Session{}, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Session{}, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, Session{}, apperrors.MapError(err)
	}

	session, err := s.issue(user.ID, domain.SubjectTypeUser, nil)
	if err != nil {
		return nil, Session{}, err
	}
	return user, session, nil
}

// LoginUser authenticates an end-user.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*domain.User, Session, error) {
	email = normalizeEmail(email)
	key := failedLoginKey(domain.SubjectTypeUser, email)
	if err := s.checkLocked(ctx, key); err != nil {
		return nil, Session{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Session{}, s.fail(ctx, key)
		}
		return nil, Session{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, Session{}, s.fail(ctx, key)
	}
	if user.Status != domain.UserStatusActive {
		return nil, Session{}, apperrors.NewForbidden("account suspended")
	}
	s.clear(ctx, key)

	session, err := s.issue(user.ID, domain.SubjectTypeUser, nil)
	if err != nil {
		return nil, Session{}, err
	}
	return user, session, nil
}

// LoginStaff authenticates staff and returns a role-bearing token.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, Session, error) {
	email = normalizeEmail(email)
	key := failedLoginKey(domain.SubjectTypeStaff, email)
	if err := s.checkLocked(ctx, key); err != nil {
		return nil, Session{}, err
	}

	staff, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Session{}, s.fail(ctx, key)
		}
		return nil, Session{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, Session{}, s.fail(ctx, key)
	}
	if !staff.Active {
		return nil, Session{}, apperrors.NewForbidden("staff inactive")
	}
	s.clear(ctx, key)

	session, err := s.issue(staff.ID, domain.SubjectTypeStaff, &staff.Role)
	if err != nil {
		return nil, Session{}, err
	}
	return staff, session, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(subjectID string, subject domain.SubjectType, role *domain.StaffRole) (Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(subjectID, subject, role)
	if err != nil {
		return Session{}, apperrors.NewInternalError(err)
	}
	return Session{Token: token, ExpiresAt: exp}, nil
}

// checkLocked fails open when the limiter is unavailable.
func (s *AuthService) checkLocked(ctx context.Context, key string) error {
	if s.limiter == nil || s.maxFailed <= 0 {
		return nil
	}
	n, err := s.limiter.Count(ctx, key)
	if err != nil {
		s.logger.Warn("failed-login counter unavailable", zap.String("key", key), zap.Error(err))
		return nil
	}
	if n >= int64(s.maxFailed) {
		return apperrors.NewForbidden("too many failed login attempts")
	}
	return nil
}

func (s *AuthService) fail(ctx context.Context, key string) error {
	if s.limiter != nil && s.maxFailed > 0 {
		if _, err := s.limiter.Incr(ctx, key, s.window); err != nil {
			s.logger.Warn("failed-login counter unavailable", zap.String("key", key), zap.Error(err))
		}
	}
	return apperrors.NewUnauthorized("invalid credentials")
}

func (s *AuthService) clear(ctx context.Context, key string) {
	if s.limiter == nil || s.maxFailed <= 0 {
		return
	}
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.logger.Warn("failed-login counter reset failed", zap.String("key", key), zap.Error(err))
	}
}

func failedLoginKey(subject domain.SubjectType, email string) string {
	return "auth:failed:" + strings.ToLower(string(subject)) + ":" + email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
