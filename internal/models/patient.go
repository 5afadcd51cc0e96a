package models

import "time"

// Patient represents a person receiving care.
type Patient struct {
	ID        string     `db:"id" json:"id"`
	MRN       string     `db:"mrn" json:"mrn"`
	FullName  string     `db:"full_name" json:"full_name"`
	Gender    string     `db:"gender" json:"gender"`
	BirthDate time.Time  `db:"birth_date" json:"birth_date"`
	Phone     string     `db:"phone" json:"phone"`
	Email     string     `db:"email" json:"email"`
	Address   string     `db:"address" json:"address"`
	CompanyID *string    `db:"company_id" json:"company_id,omitempty"`
	PhotoPath string     `db:"photo_path" json:"-"`
	Active    bool       `db:"active" json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// PatientDetail joins the company name for list screens.
type PatientDetail struct {
	Patient
	CompanyName *string `db:"company_name" json:"company_name,omitempty"`
}

// PatientFilter encapsulates allowed search parameters for listing patients.
type PatientFilter struct {
	Search    string
	CompanyID *string
	Gender    *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
