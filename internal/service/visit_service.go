package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type visitRepository interface {
	List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.VisitDetail, error)
	Create(ctx context.Context, visit *models.Visit) error
	Update(ctx context.Context, visit *models.Visit) error
}

type appointmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.AppointmentDetail, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// CreateVisitRequest holds payload for opening a visit. AppointmentID links
// the visit back to the booking when present.
type CreateVisitRequest struct {
	PatientID     string    `json:"patient_id" validate:"required"`
	DoctorID      string    `json:"doctor_id" validate:"required"`
	ClinicID      string    `json:"clinic_id" validate:"required"`
	AppointmentID *string   `json:"appointment_id,omitempty"`
	VisitedAt     time.Time `json:"visited_at" validate:"required"`
	Diagnosis     string    `json:"diagnosis"`
	Notes         string    `json:"notes"`
}

// UpdateVisitRequest holds payload for editing a visit.
type UpdateVisitRequest struct {
	VisitedAt time.Time `json:"visited_at" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	Diagnosis string    `json:"diagnosis"`
	Notes     string    `json:"notes"`
}

type visitListPayload struct {
	Visits []models.VisitDetail `json:"visits"`
	Meta   *models.ListMeta     `json:"meta"`
}

// VisitService handles encounter use-cases.
type VisitService struct {
	repo         visitRepository
	appointments appointmentLookup
	cache        *CacheService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewVisitService constructs the visit service.
func NewVisitService(repo visitRepository, appointments appointmentLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *VisitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitService{repo: repo, appointments: appointments, cache: cache, validator: validate, logger: logger}
}

func visitFilterFields(filter models.VisitFilter) map[string]string {
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
	if filter.ClinicID != nil {
		fields["clinic_id"] = *filter.ClinicID
	}
	if filter.Status != nil {
		fields["status"] = *filter.Status
	}
	return fields
}

// List returns visits and pagination metadata.
func (s *VisitService) List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, *models.ListMeta, error) {
	if filter.Status != nil && !models.ValidVisitStatus(*filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown visit status")
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("visits", page, size, visitFilterFields(filter))

	if s.cache.Enabled() {
		var cached visitListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Visits, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		visits, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &visitListPayload{Visits: visits, Meta: models.NewListMeta(page, size, total, len(visits))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list visits")
	}
	payload := result.(*visitListPayload)
	return payload.Visits, payload.Meta, nil
}

// Get returns a single visit with display names joined.
func (s *VisitService) Get(ctx context.Context, id string) (*models.VisitDetail, error) {
	visit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "visit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visit")
	}
	return visit, nil
}

// Create opens a new visit. When the visit is created from an appointment
// the appointment is moved to completed.
func (s *VisitService) Create(ctx context.Context, req CreateVisitRequest) (*models.VisitDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid visit payload")
	}
	if req.AppointmentID != nil {
		appointment, err := s.appointments.FindByID(ctx, *req.AppointmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unknown appointment")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate appointment")
		}
		if appointment.PatientID != req.PatientID || appointment.DoctorID != req.DoctorID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "appointment participants do not match")
		}
	}
	visit := &models.Visit{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		ClinicID:      req.ClinicID,
		AppointmentID: req.AppointmentID,
		VisitedAt:     req.VisitedAt,
		Status:        models.VisitStatusOpen,
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
	}
	if err := s.repo.Create(ctx, visit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create visit")
	}
	if req.AppointmentID != nil {
		if err := s.appointments.UpdateStatus(ctx, *req.AppointmentID, models.AppointmentStatusCompleted); err != nil {
			s.logger.Warn("failed to complete linked appointment", zap.String("appointment_id", *req.AppointmentID), zap.Error(err))
		}
	}
	s.invalidate(ctx, visit.ID)
	return s.Get(ctx, visit.ID)
}

// Update edits a visit. Billed visits are read only.
func (s *VisitService) Update(ctx context.Context, id string, req UpdateVisitRequest) (*models.VisitDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid visit payload")
	}
	if !models.ValidVisitStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown visit status")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "visit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visit")
	}
	if detail.Status == models.VisitStatusBilled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "billed visits cannot be edited")
	}
	visit := detail.Visit
	visit.VisitedAt = req.VisitedAt
	visit.Status = req.Status
	visit.Diagnosis = req.Diagnosis
	visit.Notes = req.Notes
	if err := s.repo.Update(ctx, &visit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visit")
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// SetResultDocument records the stored lab result document path for a visit.
// Billed visits stay read only.
func (s *VisitService) SetResultDocument(ctx context.Context, id, path string) error {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "visit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visit")
	}
	if detail.Status == models.VisitStatusBilled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "billed visits cannot be edited")
	}
	visit := detail.Visit
	visit.ResultDocPath = path
	if err := s.repo.Update(ctx, &visit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visit document")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *VisitService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("visits")); err != nil {
		s.logger.Warn("visit list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("visits", id)); err != nil {
			s.logger.Warn("visit item invalidation failed", zap.Error(err))
		}
	}
}
