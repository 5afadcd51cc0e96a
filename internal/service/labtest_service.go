package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type labTestRepository interface {
	List(ctx context.Context, filter models.LabTestFilter) ([]models.LabTest, int, error)
	FindByID(ctx context.Context, id string) (*models.LabTest, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, test *models.LabTest) error
	Update(ctx context.Context, test *models.LabTest) error
	Deactivate(ctx context.Context, id string) error
}

// CreateLabTestRequest holds payload for adding catalog entries.
type CreateLabTestRequest struct {
	Code     string  `json:"code" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Unit     string  `json:"unit"`
	RefRange string  `json:"ref_range"`
}

// UpdateLabTestRequest holds payload for editing catalog entries.
type UpdateLabTestRequest struct {
	Code     string  `json:"code" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Unit     string  `json:"unit"`
	RefRange string  `json:"ref_range"`
	Active   bool    `json:"active"`
}

type labTestListPayload struct {
	Tests []models.LabTest `json:"lab_tests"`
	Meta  *models.ListMeta `json:"meta"`
}

// LabTestService handles lab test catalog use-cases.
type LabTestService struct {
	repo      labTestRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLabTestService constructs the lab test service.
func NewLabTestService(repo labTestRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *LabTestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabTestService{repo: repo, cache: cache, validator: validate, logger: logger}
}

func labTestFilterFields(filter models.LabTestFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.Category != nil {
		fields["category"] = *filter.Category
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns lab tests and pagination metadata.
func (s *LabTestService) List(ctx context.Context, filter models.LabTestFilter) ([]models.LabTest, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("lab-tests", page, size, labTestFilterFields(filter))

	if s.cache.Enabled() {
		var cached labTestListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Tests, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		tests, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &labTestListPayload{Tests: tests, Meta: models.NewListMeta(page, size, total, len(tests))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lab tests")
	}
	payload := result.(*labTestListPayload)
	return payload.Tests, payload.Meta, nil
}

// Get returns a single lab test.
func (s *LabTestService) Get(ctx context.Context, id string) (*models.LabTest, error) {
	test, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lab test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab test")
	}
	return test, nil
}

// Create adds a catalog entry.
func (s *LabTestService) Create(ctx context.Context, req CreateLabTestRequest) (*models.LabTest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab test payload")
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate test code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "test code already used")
	}
	test := &models.LabTest{
		Code:     req.Code,
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Unit:     req.Unit,
		RefRange: req.RefRange,
		Active:   true,
	}
	if err := s.repo.Create(ctx, test); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lab test")
	}
	s.invalidate(ctx, test.ID)
	return test, nil
}

// Update edits a catalog entry.
func (s *LabTestService) Update(ctx context.Context, id string, req UpdateLabTestRequest) (*models.LabTest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab test payload")
	}
	test, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lab test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab test")
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate test code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "test code already used")
	}
	test.Code = req.Code
	test.Name = req.Name
	test.Category = req.Category
	test.Price = req.Price
	test.Unit = req.Unit
	test.RefRange = req.RefRange
	test.Active = req.Active
	if err := s.repo.Update(ctx, test); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lab test")
	}
	s.invalidate(ctx, id)
	return test, nil
}

// Deactivate retires a catalog entry.
func (s *LabTestService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lab test not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab test")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate lab test")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *LabTestService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("lab-tests")); err != nil {
		s.logger.Warn("lab test list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("lab-tests", id)); err != nil {
			s.logger.Warn("lab test item invalidation failed", zap.Error(err))
		}
	}
}
