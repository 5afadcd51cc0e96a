package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type prescriptionRepository interface {
	List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.PrescriptionDetail, error)
	Create(ctx context.Context, rx *models.Prescription, items []models.PrescriptionItem) error
	Update(ctx context.Context, rx *models.Prescription, items []models.PrescriptionItem) error
	Delete(ctx context.Context, id string) error
}

type visitLookup interface {
	FindByID(ctx context.Context, id string) (*models.VisitDetail, error)
}

type medicineLookup interface {
	FindByID(ctx context.Context, id string) (*models.Medicine, error)
}

// PrescriptionItemRequest is one medicine line in a prescription payload.
type PrescriptionItemRequest struct {
	MedicineID   string  `json:"medicine_id" validate:"required"`
	Dosage       string  `json:"dosage" validate:"required"`
	Frequency    string  `json:"frequency" validate:"required"`
	DurationDays int     `json:"duration_days" validate:"gte=0"`
	Quantity     float64 `json:"quantity" validate:"gt=0"`
	Instructions string  `json:"instructions"`
}

// CreatePrescriptionRequest holds payload for issuing a prescription.
type CreatePrescriptionRequest struct {
	VisitID string                    `json:"visit_id" validate:"required"`
	Notes   string                    `json:"notes"`
	Items   []PrescriptionItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdatePrescriptionRequest replaces the notes and item lines.
type UpdatePrescriptionRequest struct {
	Notes string                    `json:"notes"`
	Items []PrescriptionItemRequest `json:"items" validate:"required,min=1,dive"`
}

type prescriptionListPayload struct {
	Prescriptions []models.PrescriptionDetail `json:"prescriptions"`
	Meta          *models.ListMeta            `json:"meta"`
}

// PrescriptionService handles prescription use-cases.
type PrescriptionService struct {
	repo      prescriptionRepository
	visits    visitLookup
	medicines medicineLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPrescriptionService constructs the prescription service.
func NewPrescriptionService(repo prescriptionRepository, visits visitLookup, medicines medicineLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PrescriptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionService{repo: repo, visits: visits, medicines: medicines, cache: cache, validator: validate, logger: logger}
}

func prescriptionFilterFields(filter models.PrescriptionFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.DoctorID != nil {
		fields["doctor_id"] = *filter.DoctorID
	}
	if filter.PatientID != nil {
		fields["patient_id"] = *filter.PatientID
	}
	if filter.VisitID != nil {
		fields["visit_id"] = *filter.VisitID
	}
	return fields
}

// List returns prescriptions and pagination metadata.
func (s *PrescriptionService) List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, *models.ListMeta, error) {
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("prescriptions", page, size, prescriptionFilterFields(filter))

	if s.cache.Enabled() {
		var cached prescriptionListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Prescriptions, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		prescriptions, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &prescriptionListPayload{Prescriptions: prescriptions, Meta: models.NewListMeta(page, size, total, len(prescriptions))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prescriptions")
	}
	payload := result.(*prescriptionListPayload)
	return payload.Prescriptions, payload.Meta, nil
}

// Get returns a prescription with item lines.
func (s *PrescriptionService) Get(ctx context.Context, id string) (*models.PrescriptionDetail, error) {
	rx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prescription")
	}
	return rx, nil
}

// Create issues a prescription against an open visit. Patient and doctor are
// taken from the visit.
func (s *PrescriptionService) Create(ctx context.Context, req CreatePrescriptionRequest) (*models.PrescriptionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prescription payload")
	}
	visit, err := s.visits.FindByID(ctx, req.VisitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown visit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate visit")
	}
	if visit.Status == models.VisitStatusBilled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "billed visits cannot receive prescriptions")
	}
	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	rx := &models.Prescription{
		VisitID:   req.VisitID,
		PatientID: visit.PatientID,
		DoctorID:  visit.DoctorID,
		Notes:     req.Notes,
	}
	if err := s.repo.Create(ctx, rx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create prescription")
	}
	s.invalidate(ctx, rx.ID)
	return s.Get(ctx, rx.ID)
}

// Update replaces the prescription notes and item lines.
func (s *PrescriptionService) Update(ctx context.Context, id string, req UpdatePrescriptionRequest) (*models.PrescriptionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prescription payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prescription")
	}
	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	rx := detail.Prescription
	rx.Notes = req.Notes
	if err := s.repo.Update(ctx, &rx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update prescription")
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// Delete removes a prescription and its items.
func (s *PrescriptionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prescription")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete prescription")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *PrescriptionService) buildItems(ctx context.Context, reqs []PrescriptionItemRequest) ([]models.PrescriptionItem, error) {
	items := make([]models.PrescriptionItem, 0, len(reqs))
	for _, item := range reqs {
		medicine, err := s.medicines.FindByID(ctx, item.MedicineID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unknown medicine")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate medicine")
		}
		if !medicine.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "medicine is inactive")
		}
		items = append(items, models.PrescriptionItem{
			MedicineID:   item.MedicineID,
			Dosage:       item.Dosage,
			Frequency:    item.Frequency,
			DurationDays: item.DurationDays,
			Quantity:     item.Quantity,
			Instructions: item.Instructions,
		})
	}
	return items, nil
}

func (s *PrescriptionService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("prescriptions")); err != nil {
		s.logger.Warn("prescription list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("prescriptions", id)); err != nil {
			s.logger.Warn("prescription item invalidation failed", zap.Error(err))
		}
	}
}
