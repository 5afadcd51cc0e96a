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

type medicineRepository interface {
	List(ctx context.Context, filter models.MedicineFilter) ([]models.Medicine, int, error)
	FindByID(ctx context.Context, id string) (*models.Medicine, error)
	ExistsBySKU(ctx context.Context, sku, excludeID string) (bool, error)
	Create(ctx context.Context, medicine *models.Medicine) error
	Update(ctx context.Context, medicine *models.Medicine) error
	Deactivate(ctx context.Context, id string) error
}

// CreateMedicineRequest holds payload for adding catalog entries.
type CreateMedicineRequest struct {
	SKU      string  `json:"sku" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Form     string  `json:"form" validate:"required"`
	Strength string  `json:"strength"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// UpdateMedicineRequest holds payload for editing catalog entries.
type UpdateMedicineRequest struct {
	SKU      string  `json:"sku" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Form     string  `json:"form" validate:"required"`
	Strength string  `json:"strength"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price" validate:"gte=0"`
	Active   bool    `json:"active"`
}

type medicineListPayload struct {
	Medicines []models.Medicine `json:"medicines"`
	Meta      *models.ListMeta  `json:"meta"`
}

// MedicineService handles medicine catalog use-cases.
type MedicineService struct {
	repo      medicineRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMedicineService constructs the medicine service.
func NewMedicineService(repo medicineRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *MedicineService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicineService{repo: repo, cache: cache, validator: validate, logger: logger}
}

func medicineFilterFields(filter models.MedicineFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.Form != nil {
		fields["form"] = *filter.Form
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns medicines and pagination metadata.
func (s *MedicineService) List(ctx context.Context, filter models.MedicineFilter) ([]models.Medicine, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("medicines", page, size, medicineFilterFields(filter))

	if s.cache.Enabled() {
		var cached medicineListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Medicines, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		medicines, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &medicineListPayload{Medicines: medicines, Meta: models.NewListMeta(page, size, total, len(medicines))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list medicines")
	}
	payload := result.(*medicineListPayload)
	return payload.Medicines, payload.Meta, nil
}

// Get returns a single medicine.
func (s *MedicineService) Get(ctx context.Context, id string) (*models.Medicine, error) {
	medicine, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medicine not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medicine")
	}
	return medicine, nil
}

// Create adds a catalog entry.
func (s *MedicineService) Create(ctx context.Context, req CreateMedicineRequest) (*models.Medicine, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medicine payload")
	}
	exists, err := s.repo.ExistsBySKU(ctx, req.SKU, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate sku")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sku already used")
	}
	medicine := &models.Medicine{
		SKU:      req.SKU,
		Name:     req.Name,
		Form:     req.Form,
		Strength: req.Strength,
		Unit:     req.Unit,
		Price:    req.Price,
		Active:   true,
	}
	if err := s.repo.Create(ctx, medicine); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create medicine")
	}
	s.invalidate(ctx, medicine.ID)
	return medicine, nil
}

// Update edits a catalog entry.
func (s *MedicineService) Update(ctx context.Context, id string, req UpdateMedicineRequest) (*models.Medicine, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medicine payload")
	}
	medicine, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medicine not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medicine")
	}
	exists, err := s.repo.ExistsBySKU(ctx, req.SKU, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate sku")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sku already used")
	}
	medicine.SKU = req.SKU
	medicine.Name = req.Name
	medicine.Form = req.Form
	medicine.Strength = req.Strength
	medicine.Unit = req.Unit
	medicine.Price = req.Price
	medicine.Active = req.Active
	if err := s.repo.Update(ctx, medicine); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update medicine")
	}
	s.invalidate(ctx, id)
	return medicine, nil
}

// Deactivate retires a catalog entry. Issued prescriptions keep their lines.
func (s *MedicineService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "medicine not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medicine")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate medicine")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *MedicineService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("medicines")); err != nil {
		s.logger.Warn("medicine list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("medicines", id)); err != nil {
			s.logger.Warn("medicine item invalidation failed", zap.Error(err))
		}
	}
}
