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

// LabTestRepository manages the lab test catalog.
type LabTestRepository struct {
	db *sqlx.DB
}

// NewLabTestRepository constructs a LabTestRepository.
func NewLabTestRepository(db *sqlx.DB) *LabTestRepository {
	return &LabTestRepository{db: db}
}

// List returns lab tests matching the provided filters.
func (r *LabTestRepository) List(ctx context.Context, filter models.LabTestFilter) ([]models.LabTest, int, error) {
	base := "FROM lab_tests"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("LOWER(category) = $%d", len(args)+1))
		args = append(args, strings.ToLower(*filter.Category))
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"name":       "name",
		"code":       "code",
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

	query := fmt.Sprintf(`SELECT id, code, name, category, price, unit, ref_range, active, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var tests []models.LabTest
	if err := r.db.SelectContext(ctx, &tests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lab tests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lab tests: %w", err)
	}
	return tests, total, nil
}

// FindByID fetches a lab test by ID.
func (r *LabTestRepository) FindByID(ctx context.Context, id string) (*models.LabTest, error) {
	const query = `SELECT id, code, name, category, price, unit, ref_range, active, created_at, updated_at
        FROM lab_tests WHERE id = $1`
	var test models.LabTest
	if err := r.db.GetContext(ctx, &test, query, id); err != nil {
		return nil, err
	}
	return &test, nil
}

// ExistsByCode checks the natural key, optionally excluding an ID.
func (r *LabTestRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM lab_tests WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lab test code: %w", err)
	}
	return true, nil
}

// Create inserts a new lab test record.
func (r *LabTestRepository) Create(ctx context.Context, test *models.LabTest) error {
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if test.CreatedAt.IsZero() {
		test.CreatedAt = now
	}
	test.UpdatedAt = now
	const query = `INSERT INTO lab_tests (id, code, name, category, price, unit, ref_range, active, created_at, updated_at)
        VALUES (:id, :code, :name, :category, :price, :unit, :ref_range, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, test); err != nil {
		return fmt.Errorf("create lab test: %w", err)
	}
	return nil
}

// Update modifies an existing lab test.
func (r *LabTestRepository) Update(ctx context.Context, test *models.LabTest) error {
	test.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lab_tests SET code = :code, name = :name, category = :category, price = :price,
        unit = :unit, ref_range = :ref_range, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, test); err != nil {
		return fmt.Errorf("update lab test: %w", err)
	}
	return nil
}

// Deactivate marks a lab test as inactive.
func (r *LabTestRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE lab_tests SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate lab test: %w", err)
	}
	return nil
}
