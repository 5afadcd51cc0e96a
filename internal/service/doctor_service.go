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

type doctorRepository interface {
	List(ctx context.Context, filter models.DoctorFilter) ([]models.Doctor, int, error)
	FindByID(ctx context.Context, id string) (*models.Doctor, error)
	ExistsByLicense(ctx context.Context, licenseNo, excludeID string) (bool, error)
	Create(ctx context.Context, doctor *models.Doctor) error
	Update(ctx context.Context, doctor *models.Doctor) error
	Deactivate(ctx context.Context, id string) error
}

type doctorClinicRepository interface {
	ListByDoctor(ctx context.Context, doctorID string) ([]models.DoctorClinic, error)
	ListActiveByDoctor(ctx context.Context, doctorID string) ([]models.DoctorClinicDetail, error)
	Create(ctx context.Context, assignment *models.DoctorClinic) error
	UpdateFees(ctx context.Context, id string, consultationFee, followupFee float64) error
	SetActive(ctx context.Context, id string, active bool) error
}

type clinicLookup interface {
	FindByID(ctx context.Context, id string) (*models.Clinic, error)
}

// CreateDoctorRequest holds payload for creating doctors. Clinics is the
// desired assignment set; it may be empty.
type CreateDoctorRequest struct {
	FullName  string                   `json:"full_name" validate:"required"`
	Specialty string                   `json:"specialty" validate:"required"`
	LicenseNo string                   `json:"license_no" validate:"required"`
	Phone     string                   `json:"phone"`
	Email     string                   `json:"email" validate:"omitempty,email"`
	Clinics   []models.ClinicSelection `json:"clinics" validate:"dive"`
}

// UpdateDoctorRequest holds payload for updating doctors. Clinics is the
// complete desired assignment set, not a delta.
type UpdateDoctorRequest struct {
	FullName  string                   `json:"full_name" validate:"required"`
	Specialty string                   `json:"specialty" validate:"required"`
	LicenseNo string                   `json:"license_no" validate:"required"`
	Phone     string                   `json:"phone"`
	Email     string                   `json:"email" validate:"omitempty,email"`
	Active    bool                     `json:"active"`
	Clinics   []models.ClinicSelection `json:"clinics" validate:"dive"`
}

// DoctorWithClinics is the detail payload including active assignments.
type DoctorWithClinics struct {
	models.Doctor
	Clinics []models.DoctorClinicDetail `json:"clinics"`
}

type doctorListPayload struct {
	Doctors []models.Doctor  `json:"doctors"`
	Meta    *models.ListMeta `json:"meta"`
}

// DoctorService handles doctor use-cases including clinic assignments.
type DoctorService struct {
	repo        doctorRepository
	assignments doctorClinicRepository
	clinics     clinicLookup
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDoctorService constructs the doctor service.
func NewDoctorService(repo doctorRepository, assignments doctorClinicRepository, clinics clinicLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *DoctorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoctorService{repo: repo, assignments: assignments, clinics: clinics, cache: cache, validator: validate, logger: logger}
}

func doctorFilterFields(filter models.DoctorFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.Specialty != nil {
		fields["specialty"] = *filter.Specialty
	}
	if filter.ClinicID != nil {
		fields["clinic_id"] = *filter.ClinicID
	}
	if filter.Active != nil {
		fields["active"] = strconv.FormatBool(*filter.Active)
	}
	return fields
}

// List returns doctors and pagination metadata.
func (s *DoctorService) List(ctx context.Context, filter models.DoctorFilter) ([]models.Doctor, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("doctors", page, size, doctorFilterFields(filter))

	if s.cache.Enabled() {
		var cached doctorListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Doctors, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		doctors, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &doctorListPayload{Doctors: doctors, Meta: models.NewListMeta(page, size, total, len(doctors))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list doctors")
	}
	payload := result.(*doctorListPayload)
	return payload.Doctors, payload.Meta, nil
}

// Get returns a doctor with their active clinic assignments.
func (s *DoctorService) Get(ctx context.Context, id string) (*DoctorWithClinics, error) {
	doctor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "doctor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	assignments, err := s.assignments.ListActiveByDoctor(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic assignments")
	}
	return &DoctorWithClinics{Doctor: *doctor, Clinics: assignments}, nil
}

// Create registers a new doctor and reconciles the initial clinic set.
func (s *DoctorService) Create(ctx context.Context, req CreateDoctorRequest) (*DoctorWithClinics, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid doctor payload")
	}
	exists, err := s.repo.ExistsByLicense(ctx, req.LicenseNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate license")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "license number already used")
	}
	if err := s.validateSelections(ctx, req.Clinics); err != nil {
		return nil, err
	}
	doctor := &models.Doctor{
		FullName:  req.FullName,
		Specialty: req.Specialty,
		LicenseNo: req.LicenseNo,
		Phone:     req.Phone,
		Email:     req.Email,
		Active:    true,
	}
	if err := s.repo.Create(ctx, doctor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create doctor")
	}
	if err := s.reconcileClinics(ctx, doctor.ID, req.Clinics); err != nil {
		return nil, err
	}
	s.invalidate(ctx, doctor.ID)
	return s.Get(ctx, doctor.ID)
}

// Update modifies an existing doctor and reconciles the clinic set.
func (s *DoctorService) Update(ctx context.Context, id string, req UpdateDoctorRequest) (*DoctorWithClinics, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid doctor payload")
	}
	doctor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "doctor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	exists, err := s.repo.ExistsByLicense(ctx, req.LicenseNo, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate license")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "license number already used")
	}
	if err := s.validateSelections(ctx, req.Clinics); err != nil {
		return nil, err
	}
	doctor.FullName = req.FullName
	doctor.Specialty = req.Specialty
	doctor.LicenseNo = req.LicenseNo
	doctor.Phone = req.Phone
	doctor.Email = req.Email
	doctor.Active = req.Active
	if err := s.repo.Update(ctx, doctor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update doctor")
	}
	if err := s.reconcileClinics(ctx, id, req.Clinics); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// AssignClinics reconciles the doctor's assignments against the desired set
// without touching the doctor record.
func (s *DoctorService) AssignClinics(ctx context.Context, id string, selections []models.ClinicSelection) ([]models.DoctorClinicDetail, error) {
	for _, sel := range selections {
		if err := s.validator.Struct(sel); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clinic selection")
		}
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "doctor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	if err := s.validateSelections(ctx, selections); err != nil {
		return nil, err
	}
	if err := s.reconcileClinics(ctx, id, selections); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	assignments, err := s.assignments.ListActiveByDoctor(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic assignments")
	}
	return assignments, nil
}

// Deactivate marks a doctor inactive and retires their active assignments.
func (s *DoctorService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "doctor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate doctor")
	}
	existing, err := s.assignments.ListByDoctor(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic assignments")
	}
	for _, assignment := range existing {
		if !assignment.Active {
			continue
		}
		if err := s.assignments.SetActive(ctx, assignment.ID, false); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire clinic assignment")
		}
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *DoctorService) validateSelections(ctx context.Context, selections []models.ClinicSelection) error {
	seen := make(map[string]bool, len(selections))
	for _, sel := range selections {
		if seen[sel.ClinicID] {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate clinic in selection")
		}
		seen[sel.ClinicID] = true
		clinic, err := s.clinics.FindByID(ctx, sel.ClinicID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "unknown clinic in selection")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate clinic")
		}
		if !clinic.Active {
			return appErrors.Clone(appErrors.ErrValidation, "clinic is inactive")
		}
	}
	return nil
}

// reconcileClinics diffs the stored assignment rows against the desired set
// and applies the deltas one at a time: missing pairs are created, kept pairs
// have fees rewritten and are reactivated, pairs absent from the set are
// retired. The first failing write aborts the remainder; a resubmit of the
// same set only re-issues the writes that did not land.
func (s *DoctorService) reconcileClinics(ctx context.Context, doctorID string, selections []models.ClinicSelection) error {
	existing, err := s.assignments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clinic assignments")
	}
	byClinic := make(map[string]models.DoctorClinic, len(existing))
	for _, assignment := range existing {
		byClinic[assignment.ClinicID] = assignment
	}

	desired := make(map[string]bool, len(selections))
	for _, sel := range selections {
		desired[sel.ClinicID] = true
		current, ok := byClinic[sel.ClinicID]
		if !ok {
			assignment := &models.DoctorClinic{
				DoctorID:        doctorID,
				ClinicID:        sel.ClinicID,
				ConsultationFee: sel.ConsultationFee,
				FollowupFee:     sel.FollowupFee,
				Active:          true,
			}
			if err := s.assignments.Create(ctx, assignment); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clinic assignment")
			}
			continue
		}
		if current.Active && current.ConsultationFee == sel.ConsultationFee && current.FollowupFee == sel.FollowupFee {
			continue
		}
		if err := s.assignments.UpdateFees(ctx, current.ID, sel.ConsultationFee, sel.FollowupFee); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update clinic assignment")
		}
	}

	for _, assignment := range existing {
		if desired[assignment.ClinicID] || !assignment.Active {
			continue
		}
		if err := s.assignments.SetActive(ctx, assignment.ID, false); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire clinic assignment")
		}
	}
	return nil
}

func (s *DoctorService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("doctors")); err != nil {
		s.logger.Warn("doctor list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("doctors", id)); err != nil {
			s.logger.Warn("doctor item invalidation failed", zap.Error(err))
		}
	}
}
