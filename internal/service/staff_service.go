package service

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	defaultStaffPageSize = 50
	maxStaffPageSize     = 200
)

// StaffService is the read-only staff directory used when picking assignees
// and labelling report groups.
type StaffService struct {
	departments repository.DepartmentRepository
	staff       repository.StaffRepository
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role         *domain.StaffRole
	DepartmentID *string
	Active       *bool
	Limit        int
	Offset       int
}

// OrgDependencies encapsulates repositories required for the directory.
type OrgDependencies struct {
	DepartmentRepo repository.DepartmentRepository
	StaffRepo      repository.StaffRepository
}

// NewStaffService constructs the service.
func NewStaffService(deps OrgDependencies) *StaffService {
	return &StaffService{
		departments: deps.DepartmentRepo,
		staff:       deps.StaffRepo,
	}
}

// ListDepartments returns active departments. End-users need these to file tickets.
func (s *StaffService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	depts, err := s.departments.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if depts == nil {
		depts = []domain.Department{}
	}
	return depts, nil
}

// ListStaffMembers lists staff. Non-admins only see their own department.
func (s *StaffService) ListStaffMembers(ctx context.Context, actor *domain.StaffMember, filters StaffListFilters) ([]domain.StaffMember, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if filters.Role != nil && !filters.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *filters.Role})
	}
	if !actor.IsAdmin() {
		if actor.DepartmentID == nil {
			return []domain.StaffMember{}, nil
		}
		filters.DepartmentID = actor.DepartmentID
	}
	switch {
	case filters.Limit <= 0:
		filters.Limit = defaultStaffPageSize
	case filters.Limit > maxStaffPageSize:
		filters.Limit = maxStaffPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	members, err := s.staff.List(ctx, repository.StaffFilter{
		Role:         filters.Role,
		DepartmentID: filters.DepartmentID,
		Active:       filters.Active,
		Limit:        filters.Limit,
		Offset:       filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if members == nil {
		members = []domain.StaffMember{}
	}
	return members, nil
}

// GetStaffMemberByID returns one member, scoped like ListStaffMembers.
func (s *StaffService) GetStaffMemberByID(ctx context.Context, actor *domain.StaffMember, id string) (*domain.StaffMember, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "staff", map[string]any{"staff_id": id})
	}
	if !actor.IsAdmin() && member.ID != actor.ID {
		if member.DepartmentID == nil || !actor.InDepartment(*member.DepartmentID) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": id})
		}
	}
	return member, nil
}
