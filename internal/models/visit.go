package models

import "time"

// Visit statuses follow the encounter lifecycle.
const (
	VisitStatusOpen   = "open"
	VisitStatusClosed = "closed"
	VisitStatusBilled = "billed"
)

// Visit is a completed or in-progress encounter, usually created from an
// appointment.
type Visit struct {
	ID            string    `db:"id" json:"id"`
	PatientID     string    `db:"patient_id" json:"patient_id"`
	DoctorID      string    `db:"doctor_id" json:"doctor_id"`
	ClinicID      string    `db:"clinic_id" json:"clinic_id"`
	AppointmentID *string   `db:"appointment_id" json:"appointment_id,omitempty"`
	VisitedAt     time.Time `db:"visited_at" json:"visited_at"`
	Status        string    `db:"status" json:"status"`
	Diagnosis     string    `db:"diagnosis" json:"diagnosis"`
	Notes         string    `db:"notes" json:"notes"`
	ResultDocPath string    `db:"result_doc_path" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// VisitDetail joins display names for list screens.
type VisitDetail struct {
	Visit
	PatientName string `db:"patient_name" json:"patient_name"`
	DoctorName  string `db:"doctor_name" json:"doctor_name"`
	ClinicName  string `db:"clinic_name" json:"clinic_name"`
}

// VisitFilter encapsulates allowed search parameters for listing visits.
type VisitFilter struct {
	Search    string
	DoctorID  *string
	PatientID *string
	ClinicID  *string
	Status    *string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ValidVisitStatus reports whether s is a known encounter status.
func ValidVisitStatus(s string) bool {
	switch s {
	case VisitStatusOpen, VisitStatusClosed, VisitStatusBilled:
		return true
	}
	return false
}
