package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type roleRepository interface {
	List(ctx context.Context, filter models.RoleFilter) ([]models.Role, int, error)
	FindByID(ctx context.Context, id string) (*models.Role, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, role *models.Role) error
	Update(ctx context.Context, role *models.Role) error
	Deactivate(ctx context.Context, id string) error
	CountUsers(ctx context.Context, roleID string) (int, error)
	ListGrants(ctx context.Context, roleID string) ([]models.RolePermission, error)
	CreateGrant(ctx context.Context, grant *models.RolePermission) error
	SetGrantActive(ctx context.Context, grantID string, active bool) error
}

type permissionLookup interface {
	FindByID(ctx context.Context, id string) (*models.Permission, error)
	ListRoleCodes(ctx context.Context, roleID string) ([]string, error)
}

// CreateRoleRequest holds payload for creating roles.
type CreateRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// UpdateRoleRequest holds payload for updating roles.
type UpdateRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// RoleWithPermissions is the detail payload including granted codes.
type RoleWithPermissions struct {
	models.Role
	Permissions []string `json:"permissions"`
}

type roleListPayload struct {
	Roles []models.Role    `json:"roles"`
	Meta  *models.ListMeta `json:"meta"`
}

// RoleService handles role use-cases including permission grants.
type RoleService struct {
	repo        roleRepository
	permissions permissionLookup
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRoleService constructs the role service.
func NewRoleService(repo roleRepository, permissions permissionLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RoleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{repo: repo, permissions: permissions, cache: cache, validator: validate, logger: logger}
}

func roleFilterFields(filter models.RoleFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns roles and pagination metadata.
func (s *RoleService) List(ctx context.Context, filter models.RoleFilter) ([]models.Role, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("roles", page, size, roleFilterFields(filter))

	if s.cache.Enabled() {
		var cached roleListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Roles, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		roles, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &roleListPayload{Roles: roles, Meta: models.NewListMeta(page, size, total, len(roles))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	payload := result.(*roleListPayload)
	return payload.Roles, payload.Meta, nil
}

// Get returns a role with its granted permission codes.
func (s *RoleService) Get(ctx context.Context, id string) (*RoleWithPermissions, error) {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}
	codes, err := s.permissions.ListRoleCodes(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role permissions")
	}
	return &RoleWithPermissions{Role: *role, Permissions: codes}, nil
}

// Create registers a new role.
func (s *RoleService) Create(ctx context.Context, req CreateRoleRequest) (*models.Role, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate role name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "role name already used")
	}
	role := &models.Role{Name: req.Name, Description: req.Description, Active: true}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}
	s.invalidate(ctx, role.ID)
	return role, nil
}

// Update modifies an existing role.
func (s *RoleService) Update(ctx context.Context, id string, req UpdateRoleRequest) (*models.Role, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate role name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "role name already used")
	}
	role.Name = req.Name
	role.Description = req.Description
	role.Active = req.Active
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	s.invalidate(ctx, id)
	return role, nil
}

// SyncPermissions reconciles the role's grant rows against the desired
// permission set. Missing grants are created, retired grants are reactivated,
// grants absent from the set are deactivated. Writes are applied one at a
// time and the first failure aborts the remainder; resubmitting the same set
// completes the missing writes.
func (s *RoleService) SyncPermissions(ctx context.Context, id string, permissionIDs []string) (*RoleWithPermissions, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}

	desired := make(map[string]bool, len(permissionIDs))
	for _, pid := range permissionIDs {
		if desired[pid] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate permission in selection")
		}
		if _, err := s.permissions.FindByID(ctx, pid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unknown permission in selection")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate permission")
		}
		desired[pid] = true
	}

	existing, err := s.repo.ListGrants(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role grants")
	}
	byPermission := make(map[string]models.RolePermission, len(existing))
	for _, grant := range existing {
		byPermission[grant.PermissionID] = grant
	}

	for _, pid := range permissionIDs {
		current, ok := byPermission[pid]
		if !ok {
			grant := &models.RolePermission{RoleID: id, PermissionID: pid, Active: true}
			if err := s.repo.CreateGrant(ctx, grant); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grant")
			}
			continue
		}
		if current.Active {
			continue
		}
		if err := s.repo.SetGrantActive(ctx, current.ID, true); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate grant")
		}
	}
	for _, grant := range existing {
		if desired[grant.PermissionID] || !grant.Active {
			continue
		}
		if err := s.repo.SetGrantActive(ctx, grant.ID, false); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire grant")
		}
	}

	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// Deactivate retires a role that no active user carries.
func (s *RoleService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}
	count, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count role users")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "role is still assigned to active users")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate role")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *RoleService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("roles")); err != nil {
		s.logger.Warn("role list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, rbacRolePattern(id)); err != nil {
			s.logger.Warn("role permission invalidation failed", zap.Error(err))
		}
	}
}
