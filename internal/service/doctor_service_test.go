package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type mockDoctorRepo struct {
	doctors      map[string]*models.Doctor
	licenseTaken bool
	createErr    error
	deactivated  []string
}

func (m *mockDoctorRepo) List(ctx context.Context, filter models.DoctorFilter) ([]models.Doctor, int, error) {
	out := make([]models.Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (m *mockDoctorRepo) FindByID(ctx context.Context, id string) (*models.Doctor, error) {
	if d, ok := m.doctors[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDoctorRepo) ExistsByLicense(ctx context.Context, licenseNo, excludeID string) (bool, error) {
	return m.licenseTaken, nil
}

func (m *mockDoctorRepo) Create(ctx context.Context, doctor *models.Doctor) error {
	if m.createErr != nil {
		return m.createErr
	}
	doctor.ID = "d-new"
	if m.doctors == nil {
		m.doctors = make(map[string]*models.Doctor)
	}
	m.doctors[doctor.ID] = doctor
	return nil
}

func (m *mockDoctorRepo) Update(ctx context.Context, doctor *models.Doctor) error {
	m.doctors[doctor.ID] = doctor
	return nil
}

func (m *mockDoctorRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if d, ok := m.doctors[id]; ok {
		d.Active = false
	}
	return nil
}

type mockAssignmentRepo struct {
	rows          []models.DoctorClinic
	created       []models.DoctorClinic
	feeUpdates    []string
	retired       []string
	createErrFor  string
	updateErrFor  string
	nextID        int
}

func (m *mockAssignmentRepo) ListByDoctor(ctx context.Context, doctorID string) ([]models.DoctorClinic, error) {
	out := make([]models.DoctorClinic, 0, len(m.rows))
	for _, row := range m.rows {
		if row.DoctorID == doctorID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) ListActiveByDoctor(ctx context.Context, doctorID string) ([]models.DoctorClinicDetail, error) {
	var out []models.DoctorClinicDetail
	for _, row := range m.rows {
		if row.DoctorID == doctorID && row.Active {
			out = append(out, models.DoctorClinicDetail{DoctorClinic: row})
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.DoctorClinic) error {
	if m.createErrFor != "" && assignment.ClinicID == m.createErrFor {
		return errors.New("insert failed")
	}
	m.nextID++
	assignment.ID = "new-" + strconv.Itoa(m.nextID)
	m.rows = append(m.rows, *assignment)
	m.created = append(m.created, *assignment)
	return nil
}

func (m *mockAssignmentRepo) UpdateFees(ctx context.Context, id string, consultationFee, followupFee float64) error {
	if m.updateErrFor != "" && id == m.updateErrFor {
		return errors.New("update failed")
	}
	m.feeUpdates = append(m.feeUpdates, id)
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].ConsultationFee = consultationFee
			m.rows[i].FollowupFee = followupFee
			m.rows[i].Active = true
		}
	}
	return nil
}

func (m *mockAssignmentRepo) SetActive(ctx context.Context, id string, active bool) error {
	if !active {
		m.retired = append(m.retired, id)
	}
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Active = active
		}
	}
	return nil
}

type mockClinicLookup struct {
	clinics map[string]*models.Clinic
}

func (m *mockClinicLookup) FindByID(ctx context.Context, id string) (*models.Clinic, error) {
	if c, ok := m.clinics[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func newDoctorFixture() (*DoctorService, *mockDoctorRepo, *mockAssignmentRepo) {
	repo := &mockDoctorRepo{doctors: map[string]*models.Doctor{
		"d1": {ID: "d1", FullName: "Dr. Sari", Specialty: "cardiology", LicenseNo: "LIC-1", Active: true},
	}}
	assignments := &mockAssignmentRepo{rows: []models.DoctorClinic{
		{ID: "a1", DoctorID: "d1", ClinicID: "c1", ConsultationFee: 150, FollowupFee: 100, Active: true},
		{ID: "a2", DoctorID: "d1", ClinicID: "c2", ConsultationFee: 200, FollowupFee: 120, Active: true},
		{ID: "a3", DoctorID: "d1", ClinicID: "c3", ConsultationFee: 90, FollowupFee: 60, Active: false},
	}}
	clinics := &mockClinicLookup{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", Active: true},
		"c2": {ID: "c2", Name: "North", Active: true},
		"c3": {ID: "c3", Name: "South", Active: true},
		"c4": {ID: "c4", Name: "East", Active: true},
		"c9": {ID: "c9", Name: "Closed", Active: false},
	}}
	svc := NewDoctorService(repo, assignments, clinics, nil, validator.New(), zap.NewNop())
	return svc, repo, assignments
}

func TestDoctorServiceAssignClinicsReconciles(t *testing.T) {
	svc, _, assignments := newDoctorFixture()

	// Keep c1 unchanged, change c2 fees, revive c3, add c4. Nothing retired.
	_, err := svc.AssignClinics(context.Background(), "d1", []models.ClinicSelection{
		{ClinicID: "c1", ConsultationFee: 150, FollowupFee: 100},
		{ClinicID: "c2", ConsultationFee: 250, FollowupFee: 150},
		{ClinicID: "c3", ConsultationFee: 90, FollowupFee: 60},
		{ClinicID: "c4", ConsultationFee: 175, FollowupFee: 110},
	})
	require.NoError(t, err)

	require.Len(t, assignments.created, 1)
	assert.Equal(t, "c4", assignments.created[0].ClinicID)
	// c2 changed fees, c3 was inactive and matching fees still need the
	// reactivating rewrite. c1 matched an active row so it was left alone.
	assert.ElementsMatch(t, []string{"a2", "a3"}, assignments.feeUpdates)
	assert.Empty(t, assignments.retired)
}

func TestDoctorServiceAssignClinicsRetiresAbsent(t *testing.T) {
	svc, _, assignments := newDoctorFixture()

	_, err := svc.AssignClinics(context.Background(), "d1", []models.ClinicSelection{
		{ClinicID: "c1", ConsultationFee: 150, FollowupFee: 100},
	})
	require.NoError(t, err)

	assert.Empty(t, assignments.created)
	assert.Empty(t, assignments.feeUpdates)
	// Only the active absent row is retired; a3 was already inactive.
	assert.Equal(t, []string{"a2"}, assignments.retired)
}

func TestDoctorServiceAssignClinicsResubmitAfterFailure(t *testing.T) {
	svc, _, assignments := newDoctorFixture()
	assignments.updateErrFor = "a2"

	desired := []models.ClinicSelection{
		{ClinicID: "c2", ConsultationFee: 250, FollowupFee: 150},
		{ClinicID: "c4", ConsultationFee: 175, FollowupFee: 110},
	}
	_, err := svc.AssignClinics(context.Background(), "d1", desired)
	require.Error(t, err)
	// The failing fee rewrite halts the run before c4 is created and before
	// anything is retired.
	assert.Empty(t, assignments.created)
	assert.Empty(t, assignments.retired)

	assignments.updateErrFor = ""
	_, err = svc.AssignClinics(context.Background(), "d1", desired)
	require.NoError(t, err)
	require.Len(t, assignments.created, 1)
	assert.Equal(t, "c4", assignments.created[0].ClinicID)
	assert.Equal(t, []string{"a2"}, assignments.feeUpdates)
	assert.Equal(t, []string{"a1"}, assignments.retired)
}

func TestDoctorServiceAssignClinicsRejectsBadSelections(t *testing.T) {
	svc, _, _ := newDoctorFixture()

	cases := []struct {
		name       string
		selections []models.ClinicSelection
	}{
		{"duplicate clinic", []models.ClinicSelection{
			{ClinicID: "c1", ConsultationFee: 100},
			{ClinicID: "c1", ConsultationFee: 200},
		}},
		{"unknown clinic", []models.ClinicSelection{
			{ClinicID: "missing", ConsultationFee: 100},
		}},
		{"inactive clinic", []models.ClinicSelection{
			{ClinicID: "c9", ConsultationFee: 100},
		}},
		{"negative fee", []models.ClinicSelection{
			{ClinicID: "c1", ConsultationFee: -5},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AssignClinics(context.Background(), "d1", tc.selections)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestDoctorServiceCreateRejectsDuplicateLicense(t *testing.T) {
	svc, repo, _ := newDoctorFixture()
	repo.licenseTaken = true

	_, err := svc.Create(context.Background(), CreateDoctorRequest{
		FullName:  "Dr. Budi",
		Specialty: "dermatology",
		LicenseNo: "LIC-1",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestDoctorServiceCreateWithInitialClinics(t *testing.T) {
	svc, repo, assignments := newDoctorFixture()

	res, err := svc.Create(context.Background(), CreateDoctorRequest{
		FullName:  "Dr. Budi",
		Specialty: "dermatology",
		LicenseNo: "LIC-2",
		Clinics: []models.ClinicSelection{
			{ClinicID: "c4", ConsultationFee: 175, FollowupFee: 110},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "d-new", res.ID)
	assert.True(t, repo.doctors["d-new"].Active)
	require.Len(t, res.Clinics, 1)
	assert.Equal(t, "c4", res.Clinics[0].ClinicID)
	require.Len(t, assignments.created, 1)
}

func TestDoctorServiceGetNotFound(t *testing.T) {
	svc, _, _ := newDoctorFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDoctorServiceDeactivateRetiresAssignments(t *testing.T) {
	svc, repo, assignments := newDoctorFixture()

	require.NoError(t, svc.Deactivate(context.Background(), "d1"))
	assert.Equal(t, []string{"d1"}, repo.deactivated)
	assert.ElementsMatch(t, []string{"a1", "a2"}, assignments.retired)
}
