package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/medicore-api/internal/models"
)

// VisitRepository manages persistence for visit records.
type VisitRepository struct {
	db *sqlx.DB
}

// NewVisitRepository constructs a VisitRepository.
func NewVisitRepository(db *sqlx.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// List returns visits matching the provided filters.
func (r *VisitRepository) List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, int, error) {
	base := `FROM visits v
        JOIN patients p ON p.id = v.patient_id
        JOIN doctors d ON d.id = v.doctor_id
        JOIN clinics c ON c.id = v.clinic_id`
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.DoctorID != nil {
		conditions = append(conditions, fmt.Sprintf("v.doctor_id = $%d", len(args)+1))
		args = append(args, *filter.DoctorID)
	}
	if filter.PatientID != nil {
		conditions = append(conditions, fmt.Sprintf("v.patient_id = $%d", len(args)+1))
		args = append(args, *filter.PatientID)
	}
	if filter.ClinicID != nil {
		conditions = append(conditions, fmt.Sprintf("v.clinic_id = $%d", len(args)+1))
		args = append(args, *filter.ClinicID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("v.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.full_name) LIKE $%d OR LOWER(v.diagnosis) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"visited_at": "v.visited_at",
		"status":     "v.status",
		"created_at": "v.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "v.visited_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT v.id, v.patient_id, v.doctor_id, v.clinic_id, v.appointment_id, v.visited_at,
        v.status, v.diagnosis, v.notes, v.result_doc_path, v.created_at, v.updated_at,
        p.full_name AS patient_name, d.full_name AS doctor_name, c.name AS clinic_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var visits []models.VisitDetail
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}
	return visits, total, nil
}

// FindByID fetches a visit detail by ID.
func (r *VisitRepository) FindByID(ctx context.Context, id string) (*models.VisitDetail, error) {
	const query = `SELECT v.id, v.patient_id, v.doctor_id, v.clinic_id, v.appointment_id, v.visited_at,
        v.status, v.diagnosis, v.notes, v.result_doc_path, v.created_at, v.updated_at,
        p.full_name AS patient_name, d.full_name AS doctor_name, c.name AS clinic_name
        FROM visits v
        JOIN patients p ON p.id = v.patient_id
        JOIN doctors d ON d.id = v.doctor_id
        JOIN clinics c ON c.id = v.clinic_id
        WHERE v.id = $1`
	var detail models.VisitDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new visit record.
func (r *VisitRepository) Create(ctx context.Context, visit *models.Visit) error {
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = now
	}
	visit.UpdatedAt = now
	const query = `INSERT INTO visits (id, patient_id, doctor_id, clinic_id, appointment_id, visited_at, status, diagnosis, notes, result_doc_path, created_at, updated_at)
        VALUES (:id, :patient_id, :doctor_id, :clinic_id, :appointment_id, :visited_at, :status, :diagnosis, :notes, :result_doc_path, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, visit); err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	return nil
}

// Update modifies an existing visit.
func (r *VisitRepository) Update(ctx context.Context, visit *models.Visit) error {
	visit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE visits SET visited_at = :visited_at, status = :status, diagnosis = :diagnosis,
        notes = :notes, result_doc_path = :result_doc_path, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, visit); err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}
