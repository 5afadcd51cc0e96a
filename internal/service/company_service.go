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

type companyRepository interface {
	List(ctx context.Context, filter models.CompanyFilter) ([]models.Company, int, error)
	FindByID(ctx context.Context, id string) (*models.Company, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, company *models.Company) error
	Update(ctx context.Context, company *models.Company) error
	Deactivate(ctx context.Context, id string) error
}

// CreateCompanyRequest holds payload for creating companies.
type CreateCompanyRequest struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
}

// UpdateCompanyRequest holds payload for updating companies.
type UpdateCompanyRequest struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
	Active        bool   `json:"active"`
}

type companyListPayload struct {
	Companies []models.Company `json:"companies"`
	Meta      *models.ListMeta `json:"meta"`
}

// CompanyService handles company use-cases.
type CompanyService struct {
	repo      companyRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCompanyService constructs the company service.
func NewCompanyService(repo companyRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CompanyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyService{repo: repo, cache: cache, validator: validate, logger: logger}
}

func companyFilterFields(filter models.CompanyFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns companies and pagination metadata.
func (s *CompanyService) List(ctx context.Context, filter models.CompanyFilter) ([]models.Company, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("companies", page, size, companyFilterFields(filter))

	if s.cache.Enabled() {
		var cached companyListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Companies, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		companies, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &companyListPayload{Companies: companies, Meta: models.NewListMeta(page, size, total, len(companies))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list companies")
	}
	payload := result.(*companyListPayload)
	return payload.Companies, payload.Meta, nil
}

// Get returns a single company.
func (s *CompanyService) Get(ctx context.Context, id string) (*models.Company, error) {
	company, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company")
	}
	return company, nil
}

// Create registers a new company.
func (s *CompanyService) Create(ctx context.Context, req CreateCompanyRequest) (*models.Company, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid company payload")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate company name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "company name already used")
	}
	company := &models.Company{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		Active:        true,
	}
	if err := s.repo.Create(ctx, company); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create company")
	}
	s.invalidate(ctx, company.ID)
	return company, nil
}

// Update modifies an existing company record.
func (s *CompanyService) Update(ctx context.Context, id string, req UpdateCompanyRequest) (*models.Company, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid company payload")
	}
	company, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate company name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "company name already used")
	}
	company.Name = req.Name
	company.ContactPerson = req.ContactPerson
	company.Phone = req.Phone
	company.Email = req.Email
	company.Address = req.Address
	company.Active = req.Active
	if err := s.repo.Update(ctx, company); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update company")
	}
	s.invalidate(ctx, id)
	return company, nil
}

// Deactivate marks a company inactive. Member patients keep their link.
func (s *CompanyService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "company not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate company")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CompanyService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("companies")); err != nil {
		s.logger.Warn("company list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("companies", id)); err != nil {
			s.logger.Warn("company item invalidation failed", zap.Error(err))
		}
	}
}
