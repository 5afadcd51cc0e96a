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

type clinicRepository interface {
	List(ctx context.Context, filter models.ClinicFilter) ([]models.Clinic, int, error)
	FindByID(ctx context.Context, id string) (*models.Clinic, error)
	ExistsByNameCity(ctx context.Context, name, city, excludeID string) (bool, error)
	Create(ctx context.Context, clinic *models.Clinic) error
	Update(ctx context.Context, clinic *models.Clinic) error
	Deactivate(ctx context.Context, id string) error
}

// CreateClinicRequest holds payload for creating clinics.
type CreateClinicRequest struct {
	Name    string `json:"name" validate:"required"`
	City    string `json:"city" validate:"required"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// UpdateClinicRequest holds payload for updating clinics.
type UpdateClinicRequest struct {
	Name    string `json:"name" validate:"required"`
	City    string `json:"city" validate:"required"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Active  bool   `json:"active"`
}

type clinicListPayload struct {
	Clinics []models.Clinic  `json:"clinics"`
	Meta    *models.ListMeta `json:"meta"`
}

// ClinicService handles clinic use-cases.
type ClinicService struct {
	repo      clinicRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClinicService constructs the clinic service.
func NewClinicService(repo clinicRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClinicService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClinicService{repo: repo, cache: cache, validator: validate, logger: logger}
}

func clinicFilterFields(filter models.ClinicFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.City != nil {
		fields["city"] = *filter.City
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns clinics and pagination metadata. Cached pages are keyed by
// the full query shape; concurrent misses share one database round trip.
func (s *ClinicService) List(ctx context.Context, filter models.ClinicFilter) ([]models.Clinic, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("clinics", page, size, clinicFilterFields(filter))

	if s.cache.Enabled() {
		var cached clinicListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Clinics, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		clinics, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &clinicListPayload{Clinics: clinics, Meta: models.NewListMeta(page, size, total, len(clinics))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clinics")
	}
	payload := result.(*clinicListPayload)
	return payload.Clinics, payload.Meta, nil
}

// Get returns a single clinic.
func (s *ClinicService) Get(ctx context.Context, id string) (*models.Clinic, error) {
	clinic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clinic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic")
	}
	return clinic, nil
}

// Create registers a new clinic.
func (s *ClinicService) Create(ctx context.Context, req CreateClinicRequest) (*models.Clinic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clinic payload")
	}
	exists, err := s.repo.ExistsByNameCity(ctx, req.Name, req.City, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate clinic name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "clinic with this name already exists in the city")
	}
	clinic := &models.Clinic{
		Name:    req.Name,
		City:    req.City,
		Address: req.Address,
		Phone:   req.Phone,
		Email:   req.Email,
		Active:  true,
	}
	if err := s.repo.Create(ctx, clinic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clinic")
	}
	s.invalidate(ctx, clinic.ID)
	return clinic, nil
}

// Update modifies an existing clinic record.
func (s *ClinicService) Update(ctx context.Context, id string, req UpdateClinicRequest) (*models.Clinic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clinic payload")
	}
	clinic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clinic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic")
	}
	exists, err := s.repo.ExistsByNameCity(ctx, req.Name, req.City, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate clinic name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "clinic with this name already exists in the city")
	}
	clinic.Name = req.Name
	clinic.City = req.City
	clinic.Address = req.Address
	clinic.Phone = req.Phone
	clinic.Email = req.Email
	clinic.Active = req.Active
	if err := s.repo.Update(ctx, clinic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update clinic")
	}
	s.invalidate(ctx, id)
	return clinic, nil
}

// SetLogo records the stored logo path for a clinic.
func (s *ClinicService) SetLogo(ctx context.Context, id, path string) error {
	clinic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "clinic not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic")
	}
	clinic.LogoPath = path
	if err := s.repo.Update(ctx, clinic); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update clinic logo")
	}
	s.invalidate(ctx, id)
	return nil
}

// Deactivate marks a clinic inactive. Historical visits keep pointing at it.
func (s *ClinicService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "clinic not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate clinic")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *ClinicService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("clinics")); err != nil {
		s.logger.Warn("clinic list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("clinics", id)); err != nil {
			s.logger.Warn("clinic item invalidation failed", zap.Error(err))
		}
	}
}
