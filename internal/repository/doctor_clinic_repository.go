package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/medicore-api/internal/models"
)

// DoctorClinicRepository manages doctor-to-clinic assignments and fees.
type DoctorClinicRepository struct {
	db *sqlx.DB
}

// NewDoctorClinicRepository constructs a DoctorClinicRepository.
func NewDoctorClinicRepository(db *sqlx.DB) *DoctorClinicRepository {
	return &DoctorClinicRepository{db: db}
}

// ListByDoctor returns every assignment row for a doctor, inactive ones
// included, so callers can reconcile against a desired clinic set.
func (r *DoctorClinicRepository) ListByDoctor(ctx context.Context, doctorID string) ([]models.DoctorClinic, error) {
	const query = `SELECT id, doctor_id, clinic_id, consultation_fee, followup_fee, active, created_at, updated_at
        FROM doctor_clinics WHERE doctor_id = $1`
	var assignments []models.DoctorClinic
	if err := r.db.SelectContext(ctx, &assignments, query, doctorID); err != nil {
		return nil, fmt.Errorf("list doctor clinics: %w", err)
	}
	return assignments, nil
}

// ListActiveByDoctor returns the doctor's active assignments with clinic
// details joined, for detail screens.
func (r *DoctorClinicRepository) ListActiveByDoctor(ctx context.Context, doctorID string) ([]models.DoctorClinicDetail, error) {
	const query = `SELECT dc.id, dc.doctor_id, dc.clinic_id, dc.consultation_fee, dc.followup_fee, dc.active,
        dc.created_at, dc.updated_at, c.name AS clinic_name, c.city AS clinic_city
        FROM doctor_clinics dc
        JOIN clinics c ON c.id = dc.clinic_id
        WHERE dc.doctor_id = $1 AND dc.active = true
        ORDER BY c.name ASC`
	var assignments []models.DoctorClinicDetail
	if err := r.db.SelectContext(ctx, &assignments, query, doctorID); err != nil {
		return nil, fmt.Errorf("list active doctor clinics: %w", err)
	}
	return assignments, nil
}

// Create inserts a new assignment row.
func (r *DoctorClinicRepository) Create(ctx context.Context, assignment *models.DoctorClinic) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO doctor_clinics (id, doctor_id, clinic_id, consultation_fee, followup_fee, active, created_at, updated_at)
        VALUES (:id, :doctor_id, :clinic_id, :consultation_fee, :followup_fee, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create doctor clinic: %w", err)
	}
	return nil
}

// UpdateFees rewrites the fees on an assignment and reactivates it.
func (r *DoctorClinicRepository) UpdateFees(ctx context.Context, id string, consultationFee, followupFee float64) error {
	const query = `UPDATE doctor_clinics SET consultation_fee = $2, followup_fee = $3, active = true, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, consultationFee, followupFee, time.Now().UTC()); err != nil {
		return fmt.Errorf("update doctor clinic fees: %w", err)
	}
	return nil
}

// SetActive flips the active flag on an assignment.
func (r *DoctorClinicRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE doctor_clinics SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set doctor clinic active: %w", err)
	}
	return nil
}
