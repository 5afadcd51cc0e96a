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

// PatientRepository manages persistence for patient records.
type PatientRepository struct {
	db *sqlx.DB
}

// NewPatientRepository constructs a PatientRepository.
func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// List returns patients matching the provided filters.
func (r *PatientRepository) List(ctx context.Context, filter models.PatientFilter) ([]models.PatientDetail, int, error) {
	base := "FROM patients p LEFT JOIN companies c ON c.id = p.company_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.CompanyID != nil {
		conditions = append(conditions, fmt.Sprintf("p.company_id = $%d", len(args)+1))
		args = append(args, *filter.CompanyID)
	}
	if filter.Gender != nil {
		conditions = append(conditions, fmt.Sprintf("p.gender = $%d", len(args)+1))
		args = append(args, *filter.Gender)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("p.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.full_name) LIKE $%d OR LOWER(p.mrn) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":  "p.full_name",
		"mrn":        "p.mrn",
		"created_at": "p.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT p.id, p.mrn, p.full_name, p.gender, p.birth_date, p.phone, p.email, p.address,
        p.company_id, p.photo_path, p.active, p.created_at, p.updated_at, c.name AS company_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var patients []models.PatientDetail
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	return patients, total, nil
}

// FindByID fetches a patient detail by ID.
func (r *PatientRepository) FindByID(ctx context.Context, id string) (*models.PatientDetail, error) {
	const query = `SELECT p.id, p.mrn, p.full_name, p.gender, p.birth_date, p.phone, p.email, p.address,
        p.company_id, p.photo_path, p.active, p.created_at, p.updated_at, c.name AS company_name
        FROM patients p
        LEFT JOIN companies c ON c.id = p.company_id
        WHERE p.id = $1`
	var detail models.PatientDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByMRN checks if a patient with the given medical record number
// exists, optionally excluding an ID.
func (r *PatientRepository) ExistsByMRN(ctx context.Context, mrn, excludeID string) (bool, error) {
	query := "SELECT 1 FROM patients WHERE mrn = $1"
	args := []interface{}{mrn}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check mrn: %w", err)
	}
	return true, nil
}

// Create inserts a new patient record.
func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now
	const query = `INSERT INTO patients (id, mrn, full_name, gender, birth_date, phone, email, address, company_id, photo_path, active, created_at, updated_at)
        VALUES (:id, :mrn, :full_name, :gender, :birth_date, :phone, :email, :address, :company_id, :photo_path, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, patient); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

// Update modifies an existing patient.
func (r *PatientRepository) Update(ctx context.Context, patient *models.Patient) error {
	patient.UpdatedAt = time.Now().UTC()
	const query = `UPDATE patients SET mrn = :mrn, full_name = :full_name, gender = :gender, birth_date = :birth_date,
        phone = :phone, email = :email, address = :address, company_id = :company_id, photo_path = :photo_path,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, patient); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

// Deactivate marks a patient as inactive.
func (r *PatientRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE patients SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate patient: %w", err)
	}
	return nil
}
