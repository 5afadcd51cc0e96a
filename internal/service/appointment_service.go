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

type appointmentRepository interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.AppointmentDetail, error)
	Create(ctx context.Context, appointment *models.Appointment) error
	Update(ctx context.Context, appointment *models.Appointment) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type doctorLookup interface {
	FindByID(ctx context.Context, id string) (*models.Doctor, error)
}

type patientLookup interface {
	FindByID(ctx context.Context, id string) (*models.PatientDetail, error)
}

// CreateAppointmentRequest holds payload for booking appointments.
type CreateAppointmentRequest struct {
	PatientID   string    `json:"patient_id" validate:"required"`
	DoctorID    string    `json:"doctor_id" validate:"required"`
	ClinicID    string    `json:"clinic_id" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Notes       string    `json:"notes"`
}

// UpdateAppointmentRequest holds payload for rescheduling appointments.
type UpdateAppointmentRequest struct {
	PatientID   string    `json:"patient_id" validate:"required"`
	DoctorID    string    `json:"doctor_id" validate:"required"`
	ClinicID    string    `json:"clinic_id" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Status      string    `json:"status" validate:"required"`
	Notes       string    `json:"notes"`
}

type appointmentListPayload struct {
	Appointments []models.AppointmentDetail `json:"appointments"`
	Meta         *models.ListMeta           `json:"meta"`
}

// AppointmentService handles appointment booking use-cases.
type AppointmentService struct {
	repo      appointmentRepository
	doctors   doctorLookup
	patients  patientLookup
	clinics   clinicLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAppointmentService constructs the appointment service.
func NewAppointmentService(repo appointmentRepository, doctors doctorLookup, patients patientLookup, clinics clinicLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{repo: repo, doctors: doctors, patients: patients, clinics: clinics, cache: cache, validator: validate, logger: logger}
}

func appointmentFilterFields(filter models.AppointmentFilter) map[string]string {
	fields := map[string]string{
		"search":     filter.Search,
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.DoctorID != nil {
		fields["doctor_id"] = *filter.DoctorID
	}
	if filter.ClinicID != nil {
		fields["clinic_id"] = *filter.ClinicID
	}
	if filter.PatientID != nil {
		fields["patient_id"] = *filter.PatientID
	}
	if filter.Status != nil {
		fields["status"] = *filter.Status
	}
	if filter.Date != nil {
		fields["date"] = filter.Date.Format("2006-01-02")
	}
	return fields
}

// List returns appointments and pagination metadata.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, *models.ListMeta, error) {
	if filter.Status != nil && !models.ValidAppointmentStatus(*filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown appointment status")
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	key := ListKey("appointments", page, size, appointmentFilterFields(filter))

	if s.cache.Enabled() {
		var cached appointmentListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Appointments, cached.Meta, nil
		}
	}

	result, err := s.cache.Load(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		appointments, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &appointmentListPayload{Appointments: appointments, Meta: models.NewListMeta(page, size, total, len(appointments))}, nil
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	payload := result.(*appointmentListPayload)
	return payload.Appointments, payload.Meta, nil
}

// Get returns a single appointment with display names joined.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appointment, nil
}

// Create books a new appointment in scheduled status.
func (s *AppointmentService) Create(ctx context.Context, req CreateAppointmentRequest) (*models.AppointmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}
	if err := s.validateParticipants(ctx, req.PatientID, req.DoctorID, req.ClinicID); err != nil {
		return nil, err
	}
	appointment := &models.Appointment{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		ClinicID:    req.ClinicID,
		ScheduledAt: req.ScheduledAt,
		Status:      models.AppointmentStatusScheduled,
		Notes:       req.Notes,
	}
	if err := s.repo.Create(ctx, appointment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}
	s.invalidate(ctx, appointment.ID)
	return s.Get(ctx, appointment.ID)
}

// Update reschedules or edits an appointment.
func (s *AppointmentService) Update(ctx context.Context, id string, req UpdateAppointmentRequest) (*models.AppointmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}
	if !models.ValidAppointmentStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown appointment status")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	if err := s.validateParticipants(ctx, req.PatientID, req.DoctorID, req.ClinicID); err != nil {
		return nil, err
	}
	appointment := detail.Appointment
	appointment.PatientID = req.PatientID
	appointment.DoctorID = req.DoctorID
	appointment.ClinicID = req.ClinicID
	appointment.ScheduledAt = req.ScheduledAt
	appointment.Status = req.Status
	appointment.Notes = req.Notes
	if err := s.repo.Update(ctx, &appointment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// UpdateStatus transitions the appointment lifecycle. Completed and cancelled
// appointments are terminal.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id, status string) (*models.AppointmentDetail, error) {
	if !models.ValidAppointmentStatus(status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown appointment status")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	switch detail.Status {
	case models.AppointmentStatusCompleted, models.AppointmentStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "appointment is already finalised")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

func (s *AppointmentService) validateParticipants(ctx context.Context, patientID, doctorID, clinicID string) error {
	patient, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown patient")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate patient")
	}
	if !patient.Active {
		return appErrors.Clone(appErrors.ErrValidation, "patient is inactive")
	}
	doctor, err := s.doctors.FindByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown doctor")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate doctor")
	}
	if !doctor.Active {
		return appErrors.Clone(appErrors.ErrValidation, "doctor is inactive")
	}
	clinic, err := s.clinics.FindByID(ctx, clinicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown clinic")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate clinic")
	}
	if !clinic.Active {
		return appErrors.Clone(appErrors.ErrValidation, "clinic is inactive")
	}
	return nil
}

func (s *AppointmentService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, ListPattern("appointments")); err != nil {
		s.logger.Warn("appointment list invalidation failed", zap.Error(err))
	}
	if id != "" {
		if err := s.cache.Invalidate(ctx, ItemKey("appointments", id)); err != nil {
			s.logger.Warn("appointment item invalidation failed", zap.Error(err))
		}
	}
}
