package models

import "time"

// Role groups a set of permission grants.
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RoleFilter captures list criteria for roles.
type RoleFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Permission is an atomic capability, addressed by "<module>.<action>"
// (e.g. patients.update). Module groups permissions for the admin UI.
type Permission struct {
	ID        string    `db:"id" json:"id"`
	Module    string    `db:"module" json:"module"`
	Action    string    `db:"action" json:"action"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Code returns the canonical permission code checked by the RBAC middleware.
func (p Permission) Code() string {
	return p.Module + "." + p.Action
}

// PermissionFilter captures list criteria for permissions.
type PermissionFilter struct {
	Search   string
	Module   *string
	Page     int
	PageSize int
}

// ModulePermissions groups permissions under their module for assignment
// screens.
type ModulePermissions struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}

// RolePermission links a role to a permission. Grants are soft-removed by
// flipping active; historical grants stay readable.
type RolePermission struct {
	ID           string    `db:"id" json:"id"`
	RoleID       string    `db:"role_id" json:"role_id"`
	PermissionID string    `db:"permission_id" json:"permission_id"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserPermission is a per-user override layered over the role's grants.
// Effect is "allow" or "deny".
type UserPermission struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	PermissionID string    `db:"permission_id" json:"permission_id"`
	Effect       string    `db:"effect" json:"effect"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PermissionEffectAllow = "allow"
	PermissionEffectDeny  = "deny"
)
