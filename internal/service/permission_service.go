package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type permissionRepository interface {
	List(ctx context.Context, filter models.PermissionFilter) ([]models.Permission, int, error)
	ListAll(ctx context.Context) ([]models.Permission, error)
	FindByID(ctx context.Context, id string) (*models.Permission, error)
	ListRoleCodes(ctx context.Context, roleID string) ([]string, error)
	ListUserOverrideCodes(ctx context.Context, userID string) (allow []string, deny []string, err error)
	ListUserOverridesAll(ctx context.Context, userID string) ([]models.UserPermission, error)
	CreateUserOverride(ctx context.Context, override *models.UserPermission) error
	UpdateUserOverride(ctx context.Context, overrideID, effect string, active bool) error
}

// PermissionOverrideRequest is one desired per-user override entry.
type PermissionOverrideRequest struct {
	PermissionID string `json:"permission_id" validate:"required"`
	Effect       string `json:"effect" validate:"required,oneof=allow deny"`
}

// PermissionService serves the permission catalog, per-user overrides and
// effective permission resolution for access checks.
type PermissionService struct {
	repo      permissionRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPermissionService constructs the permission service.
func NewPermissionService(repo permissionRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PermissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{repo: repo, cache: cache, validator: validate, logger: logger}
}

func rbacRoleKey(roleID string) string {
	return fmt.Sprintf("rbac:role:%s", roleID)
}

func rbacRolePattern(roleID string) string {
	return rbacRoleKey(roleID)
}

func rbacUserKey(userID string) string {
	return fmt.Sprintf("rbac:user:%s", userID)
}

func rbacUserPattern(userID string) string {
	return rbacUserKey(userID)
}

// List returns permissions and pagination metadata.
func (s *PermissionService) List(ctx context.Context, filter models.PermissionFilter) ([]models.Permission, *models.ListMeta, error) {
	permissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list permissions")
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	return permissions, models.NewListMeta(page, size, total, len(permissions)), nil
}

// Catalog returns the full permission catalog grouped by module, for the
// role assignment screen.
func (s *PermissionService) Catalog(ctx context.Context) ([]models.ModulePermissions, error) {
	permissions, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permission catalog")
	}
	grouped := make(map[string][]models.Permission)
	for _, p := range permissions {
		grouped[p.Module] = append(grouped[p.Module], p)
	}
	modules := make([]string, 0, len(grouped))
	for module := range grouped {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	result := make([]models.ModulePermissions, 0, len(modules))
	for _, module := range modules {
		result = append(result, models.ModulePermissions{Module: module, Permissions: grouped[module]})
	}
	return result, nil
}

// EffectiveCodes resolves the permission codes a user can exercise: the
// role's active grants plus allow overrides, minus deny overrides. Resolved
// sets are cached per role and per user.
func (s *PermissionService) EffectiveCodes(ctx context.Context, userID, roleID string) (map[string]bool, error) {
	roleCodes, err := s.roleCodes(ctx, roleID)
	if err != nil {
		return nil, err
	}
	allow, deny, err := s.userOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}

	effective := make(map[string]bool, len(roleCodes)+len(allow))
	for _, code := range roleCodes {
		effective[code] = true
	}
	for _, code := range allow {
		effective[code] = true
	}
	for _, code := range deny {
		delete(effective, code)
	}
	return effective, nil
}

// SetUserOverrides reconciles a user's override rows against the desired
// set, with the same delta semantics as role grant sync.
func (s *PermissionService) SetUserOverrides(ctx context.Context, userID string, reqs []PermissionOverrideRequest) error {
	desired := make(map[string]string, len(reqs))
	for _, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
		}
		if _, ok := desired[req.PermissionID]; ok {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate permission in selection")
		}
		if _, err := s.repo.FindByID(ctx, req.PermissionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "unknown permission in selection")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate permission")
		}
		desired[req.PermissionID] = req.Effect
	}

	existing, err := s.repo.ListUserOverridesAll(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overrides")
	}
	byPermission := make(map[string]models.UserPermission, len(existing))
	for _, override := range existing {
		byPermission[override.PermissionID] = override
	}

	for _, req := range reqs {
		current, ok := byPermission[req.PermissionID]
		if !ok {
			override := &models.UserPermission{
				UserID:       userID,
				PermissionID: req.PermissionID,
				Effect:       req.Effect,
				Active:       true,
			}
			if err := s.repo.CreateUserOverride(ctx, override); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create override")
			}
			continue
		}
		if current.Active && current.Effect == req.Effect {
			continue
		}
		if err := s.repo.UpdateUserOverride(ctx, current.ID, req.Effect, true); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update override")
		}
	}
	for _, override := range existing {
		if _, keep := desired[override.PermissionID]; keep || !override.Active {
			continue
		}
		if err := s.repo.UpdateUserOverride(ctx, override.ID, override.Effect, false); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire override")
		}
	}

	if err := s.cache.Invalidate(ctx, rbacUserPattern(userID)); err != nil {
		s.logger.Warn("user permission invalidation failed", zap.Error(err))
	}
	return nil
}

func (s *PermissionService) roleCodes(ctx context.Context, roleID string) ([]string, error) {
	key := rbacRoleKey(roleID)
	if s.cache.Enabled() {
		var cached []string
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}
	codes, err := s.repo.ListRoleCodes(ctx, roleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role permissions")
	}
	if err := s.cache.Set(ctx, key, codes, 0); err != nil {
		s.logger.Warn("role permission cache write failed", zap.Error(err))
	}
	return codes, nil
}

type userOverridePayload struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

func (s *PermissionService) userOverrides(ctx context.Context, userID string) ([]string, []string, error) {
	key := rbacUserKey(userID)
	if s.cache.Enabled() {
		var cached userOverridePayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Allow, cached.Deny, nil
		}
	}
	allow, deny, err := s.repo.ListUserOverrideCodes(ctx, userID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user overrides")
	}
	if err := s.cache.Set(ctx, key, userOverridePayload{Allow: allow, Deny: deny}, 0); err != nil {
		s.logger.Warn("user permission cache write failed", zap.Error(err))
	}
	return allow, deny, nil
}
