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

// MedicineRepository manages the medicine catalog.
type MedicineRepository struct {
	db *sqlx.DB
}

// NewMedicineRepository constructs a MedicineRepository.
func NewMedicineRepository(db *sqlx.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// List returns medicines matching the provided filters.
func (r *MedicineRepository) List(ctx context.Context, filter models.MedicineFilter) ([]models.Medicine, int, error) {
	base := "FROM medicines"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Form != nil {
		conditions = append(conditions, fmt.Sprintf("LOWER(form) = $%d", len(args)+1))
		args = append(args, strings.ToLower(*filter.Form))
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(sku) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"name":       "name",
		"sku":        "sku",
		"price":      "price",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, sku, name, form, strength, unit, price, active, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var medicines []models.Medicine
	if err := r.db.SelectContext(ctx, &medicines, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list medicines: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}
	return medicines, total, nil
}

// FindByID fetches a medicine by ID.
func (r *MedicineRepository) FindByID(ctx context.Context, id string) (*models.Medicine, error) {
	const query = `SELECT id, sku, name, form, strength, unit, price, active, created_at, updated_at
        FROM medicines WHERE id = $1`
	var medicine models.Medicine
	if err := r.db.GetContext(ctx, &medicine, query, id); err != nil {
		return nil, err
	}
	return &medicine, nil
}

// ExistsBySKU checks the natural key, optionally excluding an ID.
func (r *MedicineRepository) ExistsBySKU(ctx context.Context, sku, excludeID string) (bool, error) {
	query := "SELECT 1 FROM medicines WHERE LOWER(sku) = LOWER($1)"
	args := []interface{}{sku}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check medicine sku: %w", err)
	}
	return true, nil
}

// Create inserts a new medicine record.
func (r *MedicineRepository) Create(ctx context.Context, medicine *models.Medicine) error {
	if medicine.ID == "" {
		medicine.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if medicine.CreatedAt.IsZero() {
		medicine.CreatedAt = now
	}
	medicine.UpdatedAt = now
	const query = `INSERT INTO medicines (id, sku, name, form, strength, unit, price, active, created_at, updated_at)
        VALUES (:id, :sku, :name, :form, :strength, :unit, :price, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, medicine); err != nil {
		return fmt.Errorf("create medicine: %w", err)
	}
	return nil
}

// Update modifies an existing medicine.
func (r *MedicineRepository) Update(ctx context.Context, medicine *models.Medicine) error {
	medicine.UpdatedAt = time.Now().UTC()
	const query = `UPDATE medicines SET sku = :sku, name = :name, form = :form, strength = :strength,
        unit = :unit, price = :price, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, medicine); err != nil {
		return fmt.Errorf("update medicine: %w", err)
	}
	return nil
}

// Deactivate marks a medicine as inactive.
func (r *MedicineRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE medicines SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate medicine: %w", err)
	}
	return nil
}
