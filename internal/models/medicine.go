package models

import "time"

// Medicine is a catalog entry for a dispensable drug.
type Medicine struct {
	ID        string    `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Form      string    `db:"form" json:"form"`
	Strength  string    `db:"strength" json:"strength"`
	Unit      string    `db:"unit" json:"unit"`
	Price     float64   `db:"price" json:"price"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MedicineFilter encapsulates allowed search parameters for listing medicines.
type MedicineFilter struct {
	Search    string
	Form      *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
