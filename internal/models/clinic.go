package models

import "time"

// Clinic represents a care location managed by the back office.
type Clinic struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	City      string    `db:"city" json:"city"`
	Address   string    `db:"address" json:"address"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	LogoPath  string    `db:"logo_path" json:"-"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClinicFilter encapsulates allowed search parameters for listing clinics.
type ClinicFilter struct {
	Search    string
	City      *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
