package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type patientRepository interface {
	List(ctx context.Context, filter models.PatientFilter) ([]models.PatientDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.PatientDetail, error)
	ExistsByMRN(ctx context.Context, mrn, excludeID string) (bool, error)
	Create(ctx context.Context, patient *models.Patient) error
	Update(ctx context.Context, patient *models.Patient) error
	Deactivate(ctx context.Context, id string) error
}

type companyLookup interface {
	FindByID(ctx context.Context, id string) (*models.Company, error)
}

// CreatePatientRequest holds payload for registering patients.
type CreatePatientRequest struct {
	MRN       string    `json:"mrn" validate:"required"`
	FullName  string    `json:"full_name" validate:"required"`
	Gender    string    `json:"gender" validate:"required,oneof=male female"`
	BirthDate time.Time `json:"birth_date" validate:"required"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Address   string    `json:"address"`
	CompanyID *string   `json:"company_id,omitempty"`
}

// UpdatePatientRequest holds payload for updating patients.
type UpdatePatientRequest struct {
	MRN       string    `json:"mrn" validate:"required"`
	FullName  string    `json:"full_name" validate:"required"`
	Gender    string    `json:"gender" validate:"required,oneof=male female"`
	BirthDate time.Time `json:"birth_date" validate:"required"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Address   string    `json:"address"`
	CompanyID *string   `json:"company_id,omitempty"`
	Active    bool      `json:"active"`
}

type patientListPayload struct {
	Patients []models.PatientDetail `json:"patients"`
	Meta     *models.ListMeta       `json:"meta"`
}

// PatientService handles patient use-cases.
type PatientService struct {
	repo      patientRepository
	companies companyLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPatientService constructs the patient service.
func NewPatientService(repo patientRepository, companies companyLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PatientService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientService{repo: repo, companies: companies, cache: cache, validator: validate, logger: logger}
}

func patientFilterFields(filter models.PatientFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.CompanyID != nil {
		fields["company_id"] = *filter.CompanyID
	}
	if filter.Gender != nil {
		fields["gender"] = *filter.Gender
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns patients and pagination metadata.
func (s *PatientService) List(ctx context.Context, filter models.PatientFilter) ([]models.PatientDetail, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("patients", page, size, patientFilterFields(filter))

	if s.cache.Enabled() {
		var cached patientListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Patients, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		patients, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &patientListPayload{Patients: patients, Meta: models.NewListMeta(page, size, total, len(patients))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list patients")
	}
	payload := result.(*patientListPayload)
	return payload.Patients, payload.Meta, nil
}

// Get returns a single patient with the company name joined.
func (s *PatientService) Get(ctx context.Context, id string) (*models.PatientDetail, error) {
	patient, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	return patient, nil
}

// Create registers a new patient.
func (s *PatientService) Create(ctx context.Context, req CreatePatientRequest) (*models.Patient, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}
	exists, err := s.repo.ExistsByMRN(ctx, req.MRN, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate mrn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "medical record number already used")
	}
	if err := s.validateCompany(ctx, req.CompanyID); err != nil {
		return nil, err
	}
	patient := &models.Patient{
		MRN:       req.MRN,
		FullName:  req.FullName,
		Gender:    req.Gender,
		BirthDate: req.BirthDate,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
		CompanyID: req.CompanyID,
		Active:    true,
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create patient")
	}
	s.invalidate(ctx, patient.ID)
	return patient, nil
}

// Update modifies an existing patient record.
func (s *PatientService) Update(ctx context.Context, id string, req UpdatePatientRequest) (*models.Patient, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	exists, err := s.repo.ExistsByMRN(ctx, req.MRN, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate mrn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "medical record number already used")
	}
	if err := s.validateCompany(ctx, req.CompanyID); err != nil {
		return nil, err
	}
	patient := detail.Patient
	patient.MRN = req.MRN
	patient.FullName = req.FullName
	patient.Gender = req.Gender
	patient.BirthDate = req.BirthDate
	patient.Phone = req.Phone
	patient.Email = req.Email
	patient.Address = req.Address
	patient.CompanyID = req.CompanyID
	patient.Active = req.Active
	if err := s.repo.Update(ctx, &patient); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update patient")
	}
	s.invalidate(ctx, id)
	return &patient, nil
}

// SetPhoto records the stored photo path for a patient.
func (s *PatientService) SetPhoto(ctx context.Context, id, path string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	patient := detail.Patient
	patient.PhotoPath = path
	if err := s.repo.Update(ctx, &patient); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update patient photo")
	}
	s.invalidate(ctx, id)
	return nil
}

// Deactivate marks a patient inactive. Visit history stays readable.
func (s *PatientService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate patient")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *PatientService) validateCompany(ctx context.Context, companyID *string) error {
	if companyID == nil {
		return nil
	}
	company, err := s.companies.FindByID(ctx, *companyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown company")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate company")
	}
	if !company.Active {
		return appErrors.Clone(appErrors.ErrValidation, "company is inactive")
	}
	return nil
}

func (s *PatientService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("patients")); err != nil {
		s.logger.Warn("patient list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("patients", id)); err != nil {
			s.logger.Warn("patient item invalidation failed", zap.Error(err))
		}
	}
}
