package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type mockAppointmentRepo struct {
	appointments map[string]*models.AppointmentDetail
	statusCalls  []string
}

func (m *mockAppointmentRepo) List(ctx context.Context, filter models.AppointmentFilter) ([]models.AppointmentDetail, int, error) {
	out := make([]models.AppointmentDetail, 0, len(m.appointments))
	for _, a := range m.appointments {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) FindByID(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	if a, ok := m.appointments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAppointmentRepo) Create(ctx context.Context, appointment *models.Appointment) error {
	appointment.ID = "ap-new"
	if m.appointments == nil {
		m.appointments = make(map[string]*models.AppointmentDetail)
	}
	m.appointments[appointment.ID] = &models.AppointmentDetail{Appointment: *appointment}
	return nil
}

func (m *mockAppointmentRepo) Update(ctx context.Context, appointment *models.Appointment) error {
	m.appointments[appointment.ID] = &models.AppointmentDetail{Appointment: *appointment}
	return nil
}

func (m *mockAppointmentRepo) UpdateStatus(ctx context.Context, id, status string) error {
	m.statusCalls = append(m.statusCalls, id+":"+status)
	if a, ok := m.appointments[id]; ok {
		a.Status = status
	}
	return nil
}

type mockDoctorLookup struct {
	doctors map[string]*models.Doctor
}

func (m *mockDoctorLookup) FindByID(ctx context.Context, id string) (*models.Doctor, error) {
	if d, ok := m.doctors[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

type mockPatientLookup struct {
	patients map[string]*models.PatientDetail
}

func (m *mockPatientLookup) FindByID(ctx context.Context, id string) (*models.PatientDetail, error) {
	if p, ok := m.patients[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func newAppointmentFixture() (*AppointmentService, *mockAppointmentRepo) {
	repo := &mockAppointmentRepo{appointments: map[string]*models.AppointmentDetail{
		"ap1": {Appointment: models.Appointment{
			ID: "ap1", PatientID: "p1", DoctorID: "d1", ClinicID: "c1",
			ScheduledAt: time.Now().UTC().Add(24 * time.Hour),
			Status:      models.AppointmentStatusScheduled,
		}},
	}}
	doctors := &mockDoctorLookup{doctors: map[string]*models.Doctor{
		"d1": {ID: "d1", FullName: "Dr. Sari", Active: true},
		"d9": {ID: "d9", FullName: "Dr. Gone", Active: false},
	}}
	patients := &mockPatientLookup{patients: map[string]*models.PatientDetail{
		"p1": {Patient: models.Patient{ID: "p1", FullName: "Rina", Active: true}},
	}}
	clinics := &mockClinicLookup{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", Active: true},
	}}
	svc := NewAppointmentService(repo, doctors, patients, clinics, nil, validator.New(), zap.NewNop())
	return svc, repo
}

func TestAppointmentServiceCreate(t *testing.T) {
	svc, repo := newAppointmentFixture()

	res, err := svc.Create(context.Background(), CreateAppointmentRequest{
		PatientID:   "p1",
		DoctorID:    "d1",
		ClinicID:    "c1",
		ScheduledAt: time.Now().UTC().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusScheduled, res.Status)
	assert.Contains(t, repo.appointments, "ap-new")
}

func TestAppointmentServiceCreateRejectsInactiveDoctor(t *testing.T) {
	svc, _ := newAppointmentFixture()

	_, err := svc.Create(context.Background(), CreateAppointmentRequest{
		PatientID:   "p1",
		DoctorID:    "d9",
		ClinicID:    "c1",
		ScheduledAt: time.Now().UTC().Add(48 * time.Hour),
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAppointmentServiceUpdateStatusTransitions(t *testing.T) {
	svc, repo := newAppointmentFixture()

	res, err := svc.UpdateStatus(context.Background(), "ap1", models.AppointmentStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusConfirmed, res.Status)
	assert.Equal(t, []string{"ap1:confirmed"}, repo.statusCalls)
}

func TestAppointmentServiceUpdateStatusRejectsFinalised(t *testing.T) {
	svc, repo := newAppointmentFixture()

	for _, terminal := range []string{models.AppointmentStatusCompleted, models.AppointmentStatusCancelled} {
		repo.appointments["ap1"].Status = terminal
		_, err := svc.UpdateStatus(context.Background(), "ap1", models.AppointmentStatusScheduled)
		require.Error(t, err)
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	}
	assert.Empty(t, repo.statusCalls)
}

func TestAppointmentServiceUpdateStatusRejectsUnknown(t *testing.T) {
	svc, _ := newAppointmentFixture()

	_, err := svc.UpdateStatus(context.Background(), "ap1", "teleported")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAppointmentServiceListRejectsUnknownStatusFilter(t *testing.T) {
	svc, _ := newAppointmentFixture()

	bogus := "limbo"
	_, _, err := svc.List(context.Background(), models.AppointmentFilter{Status: &bogus})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
