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

// PrescriptionRepository manages persistence for prescriptions and their
// medicine lines.
type PrescriptionRepository struct {
	db *sqlx.DB
}

// NewPrescriptionRepository constructs a PrescriptionRepository.
func NewPrescriptionRepository(db *sqlx.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// List returns prescriptions matching the provided filters. Items are not
// loaded on list screens.
func (r *PrescriptionRepository) List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, int, error) {
	base := `FROM prescriptions rx
        JOIN patients p ON p.id = rx.patient_id
        JOIN doctors d ON d.id = rx.doctor_id`
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.DoctorID != nil {
		conditions = append(conditions, fmt.Sprintf("rx.doctor_id = $%d", len(args)+1))
		args = append(args, *filter.DoctorID)
	}
	if filter.PatientID != nil {
		conditions = append(conditions, fmt.Sprintf("rx.patient_id = $%d", len(args)+1))
		args = append(args, *filter.PatientID)
	}
	if filter.VisitID != nil {
		conditions = append(conditions, fmt.Sprintf("rx.visit_id = $%d", len(args)+1))
		args = append(args, *filter.VisitID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.full_name) LIKE $%d OR LOWER(d.full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT rx.id, rx.visit_id, rx.patient_id, rx.doctor_id, rx.notes, rx.created_at, rx.updated_at,
        p.full_name AS patient_name, d.full_name AS doctor_name
        %s ORDER BY rx.created_at %s LIMIT %d OFFSET %d`, base, order, size, offset)

	var prescriptions []models.PrescriptionDetail
	if err := r.db.SelectContext(ctx, &prescriptions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}
	return prescriptions, total, nil
}

// FindByID fetches a prescription with its item lines.
func (r *PrescriptionRepository) FindByID(ctx context.Context, id string) (*models.PrescriptionDetail, error) {
	const query = `SELECT rx.id, rx.visit_id, rx.patient_id, rx.doctor_id, rx.notes, rx.created_at, rx.updated_at,
        p.full_name AS patient_name, d.full_name AS doctor_name
        FROM prescriptions rx
        JOIN patients p ON p.id = rx.patient_id
        JOIN doctors d ON d.id = rx.doctor_id
        WHERE rx.id = $1`
	var detail models.PrescriptionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}

	const itemsQuery = `SELECT i.id, i.prescription_id, i.medicine_id, i.dosage, i.frequency, i.duration_days,
        i.quantity, i.instructions, m.name AS medicine_name, m.form AS medicine_form
        FROM prescription_items i
        JOIN medicines m ON m.id = i.medicine_id
        WHERE i.prescription_id = $1
        ORDER BY m.name ASC`
	if err := r.db.SelectContext(ctx, &detail.Items, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("load prescription items: %w", err)
	}
	return &detail, nil
}

// Create inserts a prescription and its items in one transaction.
func (r *PrescriptionRepository) Create(ctx context.Context, rx *models.Prescription, items []models.PrescriptionItem) error {
	if rx.ID == "" {
		rx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rx.CreatedAt.IsZero() {
		rx.CreatedAt = now
	}
	rx.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prescription tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const headQuery = `INSERT INTO prescriptions (id, visit_id, patient_id, doctor_id, notes, created_at, updated_at)
        VALUES (:id, :visit_id, :patient_id, :doctor_id, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, headQuery, rx); err != nil {
		return fmt.Errorf("create prescription: %w", err)
	}

	const itemQuery = `INSERT INTO prescription_items (id, prescription_id, medicine_id, dosage, frequency, duration_days, quantity, instructions)
        VALUES (:id, :prescription_id, :medicine_id, :dosage, :frequency, :duration_days, :quantity, :instructions)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].PrescriptionID = rx.ID
		if _, err := tx.NamedExecContext(ctx, itemQuery, items[i]); err != nil {
			return fmt.Errorf("create prescription item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prescription: %w", err)
	}
	return nil
}

// Update replaces the prescription notes and item lines.
func (r *PrescriptionRepository) Update(ctx context.Context, rx *models.Prescription, items []models.PrescriptionItem) error {
	rx.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prescription tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const headQuery = `UPDATE prescriptions SET notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, headQuery, rx); err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM prescription_items WHERE prescription_id = $1`, rx.ID); err != nil {
		return fmt.Errorf("clear prescription items: %w", err)
	}

	const itemQuery = `INSERT INTO prescription_items (id, prescription_id, medicine_id, dosage, frequency, duration_days, quantity, instructions)
        VALUES (:id, :prescription_id, :medicine_id, :dosage, :frequency, :duration_days, :quantity, :instructions)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].PrescriptionID = rx.ID
		if _, err := tx.NamedExecContext(ctx, itemQuery, items[i]); err != nil {
			return fmt.Errorf("create prescription item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prescription: %w", err)
	}
	return nil
}

// Delete removes a prescription and its items.
func (r *PrescriptionRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prescription tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM prescription_items WHERE prescription_id = $1`, id); err != nil {
		return fmt.Errorf("delete prescription items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prescription delete: %w", err)
	}
	return nil
}
