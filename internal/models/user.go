package models

import "time"

// User represents a back-office account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	RoleID       string     `db:"role_id" json:"role_id"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserDetail joins the role name for list screens.
type UserDetail struct {
	User
	RoleName string `db:"role_name" json:"role_name"`
}

// UserFilter captures filtering criteria for listing users. Nil pointer
// fields are omitted from the query entirely.
type UserFilter struct {
	Search    string
	RoleID    *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
