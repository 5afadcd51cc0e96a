package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/medicore-api/internal/models"
)

// PermissionRepository manages the permission catalog and per-user overrides.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs a PermissionRepository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// List returns permissions matching the provided filters. The catalog is
// small so list screens usually ask for everything in one page.
func (r *PermissionRepository) List(ctx context.Context, filter models.PermissionFilter) ([]models.Permission, int, error) {
	base := "FROM permissions"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Module != nil {
		conditions = append(conditions, fmt.Sprintf("LOWER(module) = $%d", len(args)+1))
		args = append(args, strings.ToLower(*filter.Module))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(action) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, module, action, name, created_at
        %s ORDER BY module ASC, action ASC LIMIT %d OFFSET %d`, base, size, offset)

	var permissions []models.Permission
	if err := r.db.SelectContext(ctx, &permissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count permissions: %w", err)
	}
	return permissions, total, nil
}

// ListAll returns the full catalog ordered by module then action.
func (r *PermissionRepository) ListAll(ctx context.Context) ([]models.Permission, error) {
	const query = `SELECT id, module, action, name, created_at FROM permissions ORDER BY module ASC, action ASC`
	var permissions []models.Permission
	if err := r.db.SelectContext(ctx, &permissions, query); err != nil {
		return nil, fmt.Errorf("list all permissions: %w", err)
	}
	return permissions, nil
}

// FindByID fetches a permission by ID.
func (r *PermissionRepository) FindByID(ctx context.Context, id string) (*models.Permission, error) {
	const query = `SELECT id, module, action, name, created_at FROM permissions WHERE id = $1`
	var permission models.Permission
	if err := r.db.GetContext(ctx, &permission, query, id); err != nil {
		return nil, err
	}
	return &permission, nil
}

// ListRoleCodes returns the active permission codes granted to a role.
func (r *PermissionRepository) ListRoleCodes(ctx context.Context, roleID string) ([]string, error) {
	const query = `SELECT p.module || '.' || p.action
        FROM role_permissions rp
        JOIN permissions p ON p.id = rp.permission_id
        WHERE rp.role_id = $1 AND rp.active = true
        ORDER BY 1`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, roleID); err != nil {
		return nil, fmt.Errorf("list role permission codes: %w", err)
	}
	return codes, nil
}

// ListUserOverrides returns the active per-user overrides layered over the
// role's grants.
func (r *PermissionRepository) ListUserOverrides(ctx context.Context, userID string) ([]models.UserPermission, error) {
	const query = `SELECT id, user_id, permission_id, effect, active, created_at, updated_at
        FROM user_permissions WHERE user_id = $1 AND active = true`
	var overrides []models.UserPermission
	if err := r.db.SelectContext(ctx, &overrides, query, userID); err != nil {
		return nil, fmt.Errorf("list user overrides: %w", err)
	}
	return overrides, nil
}

// ListUserOverrideCodes resolves active overrides to permission codes keyed
// by effect.
func (r *PermissionRepository) ListUserOverrideCodes(ctx context.Context, userID string) (allow []string, deny []string, err error) {
	const query = `SELECT p.module || '.' || p.action AS code, up.effect
        FROM user_permissions up
        JOIN permissions p ON p.id = up.permission_id
        WHERE up.user_id = $1 AND up.active = true`
	rows := []struct {
		Code   string `db:"code"`
		Effect string `db:"effect"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, nil, fmt.Errorf("list user override codes: %w", err)
	}
	for _, row := range rows {
		if row.Effect == models.PermissionEffectDeny {
			deny = append(deny, row.Code)
		} else {
			allow = append(allow, row.Code)
		}
	}
	return allow, deny, nil
}

// ListUserOverridesAll returns every override row for a user, inactive ones
// included, for reconciliation.
func (r *PermissionRepository) ListUserOverridesAll(ctx context.Context, userID string) ([]models.UserPermission, error) {
	const query = `SELECT id, user_id, permission_id, effect, active, created_at, updated_at
        FROM user_permissions WHERE user_id = $1`
	var overrides []models.UserPermission
	if err := r.db.SelectContext(ctx, &overrides, query, userID); err != nil {
		return nil, fmt.Errorf("list user overrides: %w", err)
	}
	return overrides, nil
}

// CreateUserOverride inserts a per-user override.
func (r *PermissionRepository) CreateUserOverride(ctx context.Context, override *models.UserPermission) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if override.CreatedAt.IsZero() {
		override.CreatedAt = now
	}
	override.UpdatedAt = now
	const query = `INSERT INTO user_permissions (id, user_id, permission_id, effect, active, created_at, updated_at)
        VALUES (:id, :user_id, :permission_id, :effect, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, override); err != nil {
		return fmt.Errorf("create user override: %w", err)
	}
	return nil
}

// UpdateUserOverride rewrites the effect and active flag on an override.
func (r *PermissionRepository) UpdateUserOverride(ctx context.Context, overrideID, effect string, active bool) error {
	const query = `UPDATE user_permissions SET effect = $2, active = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, overrideID, effect, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("update user override: %w", err)
	}
	return nil
}
