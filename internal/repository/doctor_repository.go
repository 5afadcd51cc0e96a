package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/medicore-api/internal/models"
)

// DoctorRepository manages persistence for doctor records.
type DoctorRepository struct {
	db *sqlx.DB
}

// NewDoctorRepository constructs a DoctorRepository.
func NewDoctorRepository(db *sqlx.DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

// List returns doctors matching the provided filters. A clinic filter narrows
// to doctors with an active assignment at that clinic.
func (r *DoctorRepository) List(ctx context.Context, filter models.DoctorFilter) ([]models.Doctor, int, error) {
	base := "FROM doctors d"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClinicID != nil {
		base += " JOIN doctor_clinics dc ON dc.doctor_id = d.id AND dc.active = true"
		conditions = append(conditions, fmt.Sprintf("dc.clinic_id = $%d", len(args)+1))
		args = append(args, *filter.ClinicID)
	}
	if filter.Specialty != nil {
		conditions = append(conditions, fmt.Sprintf("LOWER(d.specialty) = $%d", len(args)+1))
		args = append(args, strings.ToLower(*filter.Specialty))
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("d.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(d.full_name) LIKE $%d OR LOWER(d.license_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":  "d.full_name",
		"specialty":  "d.specialty",
		"created_at": "d.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "d.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT d.id, d.full_name, d.specialty, d.license_no, d.phone, d.email, d.photo_path, d.active, d.created_at, d.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var doctors []models.Doctor
	if err := r.db.SelectContext(ctx, &doctors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT d.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}
	return doctors, total, nil
}

// FindByID fetches a doctor by ID.
func (r *DoctorRepository) FindByID(ctx context.Context, id string) (*models.Doctor, error) {
	const query = `SELECT id, full_name, specialty, license_no, phone, email, photo_path, active, created_at, updated_at
        FROM doctors WHERE id = $1`
	var doctor models.Doctor
	if err := r.db.GetContext(ctx, &doctor, query, id); err != nil {
		return nil, err
	}
	return &doctor, nil
}

// ExistsByLicense checks if a doctor with the given license exists, optionally
// excluding an ID.
func (r *DoctorRepository) ExistsByLicense(ctx context.Context, licenseNo, excludeID string) (bool, error) {
	query := "SELECT 1 FROM doctors WHERE license_no = $1"
	args := []interface{}{licenseNo}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check license: %w", err)
	}
	return true, nil
}

// Create inserts a new doctor record.
func (r *DoctorRepository) Create(ctx context.Context, doctor *models.Doctor) error {
	if doctor.ID == "" {
		doctor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doctor.CreatedAt.IsZero() {
		doctor.CreatedAt = now
	}
	doctor.UpdatedAt = now
	const query = `INSERT INTO doctors (id, full_name, specialty, license_no, phone, email, photo_path, active, created_at, updated_at)
        VALUES (:id, :full_name, :specialty, :license_no, :phone, :email, :photo_path, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doctor); err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

// Update modifies an existing doctor.
func (r *DoctorRepository) Update(ctx context.Context, doctor *models.Doctor) error {
	doctor.UpdatedAt = time.Now().UTC()
	const query = `UPDATE doctors SET full_name = :full_name, specialty = :specialty, license_no = :license_no,
        phone = :phone, email = :email, photo_path = :photo_path, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, doctor); err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	return nil
}

// Deactivate marks a doctor as inactive.
func (r *DoctorRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE doctors SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate doctor: %w", err)
	}
	return nil
}
