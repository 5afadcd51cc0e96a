package models

import "time"

// Doctor represents a practitioner registered with the back office.
type Doctor struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Specialty string    `db:"specialty" json:"specialty"`
	LicenseNo string    `db:"license_no" json:"license_no"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	PhotoPath string    `db:"photo_path" json:"-"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DoctorFilter encapsulates allowed search parameters for listing doctors.
// ClinicID narrows the list to doctors with an active assignment at a clinic.
type DoctorFilter struct {
	Search    string
	Specialty *string
	ClinicID  *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
