package models

import "time"

// Prescription is issued during a visit and carries one or more medicine
// items.
type Prescription struct {
	ID        string    `db:"id" json:"id"`
	VisitID   string    `db:"visit_id" json:"visit_id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	DoctorID  string    `db:"doctor_id" json:"doctor_id"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PrescriptionItem is one medicine line on a prescription.
type PrescriptionItem struct {
	ID             string  `db:"id" json:"id"`
	PrescriptionID string  `db:"prescription_id" json:"prescription_id"`
	MedicineID     string  `db:"medicine_id" json:"medicine_id"`
	Dosage         string  `db:"dosage" json:"dosage"`
	Frequency      string  `db:"frequency" json:"frequency"`
	DurationDays   int     `db:"duration_days" json:"duration_days"`
	Quantity       float64 `db:"quantity" json:"quantity"`
	Instructions   string  `db:"instructions" json:"instructions"`
}

// PrescriptionItemDetail joins the medicine name for display and printouts.
type PrescriptionItemDetail struct {
	PrescriptionItem
	MedicineName string `db:"medicine_name" json:"medicine_name"`
	MedicineForm string `db:"medicine_form" json:"medicine_form"`
}

// PrescriptionDetail joins names plus the item lines.
type PrescriptionDetail struct {
	Prescription
	PatientName string                   `db:"patient_name" json:"patient_name"`
	DoctorName  string                   `db:"doctor_name" json:"doctor_name"`
	Items       []PrescriptionItemDetail `db:"-" json:"items"`
}

// PrescriptionFilter encapsulates allowed search parameters for listing
// prescriptions.
type PrescriptionFilter struct {
	Search    string
	DoctorID  *string
	PatientID *string
	VisitID   *string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
