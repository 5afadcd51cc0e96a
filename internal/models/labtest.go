package models

import "time"

// LabTest is a catalog entry for an orderable laboratory test.
type LabTest struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Category    string    `db:"category" json:"category"`
	Price       float64   `db:"price" json:"price"`
	Unit        string    `db:"unit" json:"unit"`
	RefRange    string    `db:"ref_range" json:"ref_range"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LabTestFilter encapsulates allowed search parameters for listing lab tests.
type LabTestFilter struct {
	Search    string
	Category  *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
