package models

import "time"

// Appointment statuses follow the booking lifecycle.
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusNoShow    = "no_show"
)

// Appointment is a booked slot between a patient and a doctor at a clinic.
type Appointment struct {
	ID          string    `db:"id" json:"id"`
	PatientID   string    `db:"patient_id" json:"patient_id"`
	DoctorID    string    `db:"doctor_id" json:"doctor_id"`
	ClinicID    string    `db:"clinic_id" json:"clinic_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      string    `db:"status" json:"status"`
	Notes       string    `db:"notes" json:"notes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AppointmentDetail joins display names for list screens.
type AppointmentDetail struct {
	Appointment
	PatientName string `db:"patient_name" json:"patient_name"`
	DoctorName  string `db:"doctor_name" json:"doctor_name"`
	ClinicName  string `db:"clinic_name" json:"clinic_name"`
}

// AppointmentFilter encapsulates allowed search parameters for listing
// appointments. Date filters the calendar day of scheduled_at.
type AppointmentFilter struct {
	Search    string
	DoctorID  *string
	ClinicID  *string
	PatientID *string
	Status    *string
	Date      *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ValidAppointmentStatus reports whether s is a known lifecycle status.
func ValidAppointmentStatus(s string) bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusCompleted,
		AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}
