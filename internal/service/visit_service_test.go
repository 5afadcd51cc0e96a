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

type mockVisitRepo struct {
	visits  map[string]*models.VisitDetail
	updated []string
}

func (m *mockVisitRepo) List(ctx context.Context, filter models.VisitFilter) ([]models.VisitDetail, int, error) {
	out := make([]models.VisitDetail, 0, len(m.visits))
	for _, v := range m.visits {
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (m *mockVisitRepo) FindByID(ctx context.Context, id string) (*models.VisitDetail, error) {
	if v, ok := m.visits[id]; ok {
		return v, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVisitRepo) Create(ctx context.Context, visit *models.Visit) error {
	visit.ID = "v-new"
	if m.visits == nil {
		m.visits = make(map[string]*models.VisitDetail)
	}
	m.visits[visit.ID] = &models.VisitDetail{Visit: *visit}
	return nil
}

func (m *mockVisitRepo) Update(ctx context.Context, visit *models.Visit) error {
	m.updated = append(m.updated, visit.ID)
	m.visits[visit.ID] = &models.VisitDetail{Visit: *visit}
	return nil
}

type mockAppointmentLookup struct {
	appointments map[string]*models.AppointmentDetail
	statusCalls  []string
}

func (m *mockAppointmentLookup) FindByID(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	if a, ok := m.appointments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAppointmentLookup) UpdateStatus(ctx context.Context, id, status string) error {
	m.statusCalls = append(m.statusCalls, id+":"+status)
	return nil
}

func newVisitFixture() (*VisitService, *mockVisitRepo, *mockAppointmentLookup) {
	repo := &mockVisitRepo{visits: map[string]*models.VisitDetail{
		"v1": {Visit: models.Visit{
			ID: "v1", PatientID: "p1", DoctorID: "d1", ClinicID: "c1",
			VisitedAt: time.Now().UTC(), Status: models.VisitStatusOpen,
		}},
	}}
	appointments := &mockAppointmentLookup{appointments: map[string]*models.AppointmentDetail{
		"ap1": {Appointment: models.Appointment{
			ID: "ap1", PatientID: "p1", DoctorID: "d1", ClinicID: "c1",
			Status: models.AppointmentStatusConfirmed,
		}},
	}}
	svc := NewVisitService(repo, appointments, nil, validator.New(), zap.NewNop())
	return svc, repo, appointments
}

func TestVisitServiceCreateFromAppointment(t *testing.T) {
	svc, repo, appointments := newVisitFixture()

	appointmentID := "ap1"
	res, err := svc.Create(context.Background(), CreateVisitRequest{
		PatientID:     "p1",
		DoctorID:      "d1",
		ClinicID:      "c1",
		AppointmentID: &appointmentID,
		VisitedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusOpen, res.Status)
	assert.Contains(t, repo.visits, "v-new")
	assert.Equal(t, []string{"ap1:completed"}, appointments.statusCalls)
}

func TestVisitServiceCreateRejectsMismatchedAppointment(t *testing.T) {
	svc, _, _ := newVisitFixture()

	appointmentID := "ap1"
	_, err := svc.Create(context.Background(), CreateVisitRequest{
		PatientID:     "p-other",
		DoctorID:      "d1",
		ClinicID:      "c1",
		AppointmentID: &appointmentID,
		VisitedAt:     time.Now().UTC(),
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestVisitServiceUpdateClosesVisit(t *testing.T) {
	svc, repo, _ := newVisitFixture()

	res, err := svc.Update(context.Background(), "v1", UpdateVisitRequest{
		VisitedAt: time.Now().UTC(),
		Status:    models.VisitStatusClosed,
		Diagnosis: "URI",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusClosed, res.Status)
	assert.Equal(t, []string{"v1"}, repo.updated)
}

func TestVisitServiceUpdateRejectsBilled(t *testing.T) {
	svc, repo, _ := newVisitFixture()
	repo.visits["v1"].Status = models.VisitStatusBilled

	_, err := svc.Update(context.Background(), "v1", UpdateVisitRequest{
		VisitedAt: time.Now().UTC(),
		Status:    models.VisitStatusClosed,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, repo.updated)
}
