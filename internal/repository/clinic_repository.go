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

// ClinicRepository manages persistence for clinic records.
type ClinicRepository struct {
	db *sqlx.DB
}

// NewClinicRepository constructs a ClinicRepository.
func NewClinicRepository(db *sqlx.DB) *ClinicRepository {
	return &ClinicRepository{db: db}
}

// List returns clinics matching the provided filters along with the total
// row count. Unset filters contribute nothing to the WHERE clause.
func (r *ClinicRepository) List(ctx context.Context, filter models.ClinicFilter) ([]models.Clinic, int, error) {
	base := "FROM clinics"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.City != nil {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = $%d", len(args)+1))
		args = append(args, strings.ToLower(*filter.City))
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(city) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"name":       "name",
		"city":       "city",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, city, address, phone, email, logo_path, active, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var clinics []models.Clinic
	if err := r.db.SelectContext(ctx, &clinics, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list clinics: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clinics: %w", err)
	}
	return clinics, total, nil
}

// FindByID fetches a clinic by ID.
func (r *ClinicRepository) FindByID(ctx context.Context, id string) (*models.Clinic, error) {
	const query = `SELECT id, name, city, address, phone, email, logo_path, active, created_at, updated_at
        FROM clinics WHERE id = $1`
	var clinic models.Clinic
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		return nil, err
	}
	return &clinic, nil
}

// ExistsByNameCity checks the natural key, optionally excluding an ID.
func (r *ClinicRepository) ExistsByNameCity(ctx context.Context, name, city, excludeID string) (bool, error) {
	query := "SELECT 1 FROM clinics WHERE LOWER(name) = LOWER($1) AND LOWER(city) = LOWER($2)"
	args := []interface{}{name, city}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check clinic name: %w", err)
	}
	return true, nil
}

// Create inserts a new clinic record.
func (r *ClinicRepository) Create(ctx context.Context, clinic *models.Clinic) error {
	if clinic.ID == "" {
		clinic.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if clinic.CreatedAt.IsZero() {
		clinic.CreatedAt = now
	}
	clinic.UpdatedAt = now
	const query = `INSERT INTO clinics (id, name, city, address, phone, email, logo_path, active, created_at, updated_at)
        VALUES (:id, :name, :city, :address, :phone, :email, :logo_path, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, clinic); err != nil {
		return fmt.Errorf("create clinic: %w", err)
	}
	return nil
}

// Update modifies an existing clinic.
func (r *ClinicRepository) Update(ctx context.Context, clinic *models.Clinic) error {
	clinic.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clinics SET name = :name, city = :city, address = :address, phone = :phone,
        email = :email, logo_path = :logo_path, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, clinic); err != nil {
		return fmt.Errorf("update clinic: %w", err)
	}
	return nil
}

// Deactivate marks a clinic as inactive.
func (r *ClinicRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE clinics SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate clinic: %w", err)
	}
	return nil
}
