package models

import "time"

// DoctorClinic links a doctor to a clinic with per-clinic fees. At most one
// active row exists per (doctor, clinic) pair; removal flips active to false
// so historical assignments stay readable.
type DoctorClinic struct {
	ID              string    `db:"id" json:"id"`
	DoctorID        string    `db:"doctor_id" json:"doctor_id"`
	ClinicID        string    `db:"clinic_id" json:"clinic_id"`
	ConsultationFee float64   `db:"consultation_fee" json:"consultation_fee"`
	FollowupFee     float64   `db:"followup_fee" json:"followup_fee"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// DoctorClinicDetail joins the clinic name for assignment screens.
type DoctorClinicDetail struct {
	DoctorClinic
	ClinicName string `db:"clinic_name" json:"clinic_name"`
	ClinicCity string `db:"clinic_city" json:"clinic_city"`
}

// ClinicSelection is one desired (clinic, fees) entry in a reconciliation
// request; the full set describes the final state the user chose.
type ClinicSelection struct {
	ClinicID        string  `json:"clinic_id" validate:"required"`
	ConsultationFee float64 `json:"consultation_fee" validate:"gte=0"`
	FollowupFee     float64 `json:"followup_fee" validate:"gte=0"`
}
