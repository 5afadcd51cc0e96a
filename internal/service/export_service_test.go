package service

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
	"github.com/medicore/medicore-api/pkg/jobs"
	"github.com/medicore/medicore-api/pkg/storage"
)

type mockExportRepo struct {
	mu          sync.Mutex
	jobs        map[string]*models.ExportJob
	transitions []string
	nextID      int
}

func (m *mockExportRepo) Create(ctx context.Context, job *models.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = "job-" + strconv.Itoa(m.nextID)
	job.CreatedAt = time.Now().UTC()
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ExportJob)
	}
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *mockExportRepo) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportRepo) MarkRunning(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, id+":running")
	m.jobs[id].Status = models.ExportStatusRunning
	return nil
}

func (m *mockExportRepo) MarkCompleted(ctx context.Context, id, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, id+":completed")
	m.jobs[id].Status = models.ExportStatusCompleted
	m.jobs[id].FilePath = filePath
	return nil
}

func (m *mockExportRepo) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, id+":failed")
	if job, ok := m.jobs[id]; ok {
		job.Status = models.ExportStatusFailed
		job.Error = reason
	}
	return nil
}

func (m *mockExportRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.RequestedBy == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockExportRepo) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		return job.Status
	}
	return ""
}

func (m *mockExportRepo) seed(job *models.ExportJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ExportJob)
	}
	m.jobs[job.ID] = job
}

type mockExportPatients struct {
	patients []models.PatientDetail
}

func (m *mockExportPatients) List(ctx context.Context, filter models.PatientFilter) ([]models.PatientDetail, int, error) {
	if filter.Page > 1 {
		return nil, len(m.patients), nil
	}
	return m.patients, len(m.patients), nil
}

type mockExportPrescriptions struct {
	rx *models.PrescriptionDetail
}

func (m *mockExportPrescriptions) FindByID(ctx context.Context, id string) (*models.PrescriptionDetail, error) {
	if m.rx == nil || m.rx.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.rx, nil
}

func newExportFixture(t *testing.T) (*ExportService, *mockExportRepo, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	repo := &mockExportRepo{}
	company := "PT Sehat"
	patients := &mockExportPatients{patients: []models.PatientDetail{
		{
			Patient: models.Patient{ID: "p1", MRN: "MRN-001", FullName: "Rina", Gender: "f",
				BirthDate: time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC), Active: true},
			CompanyName: &company,
		},
	}}

	prescriptions := &mockExportPrescriptions{rx: &models.PrescriptionDetail{
		Prescription: models.Prescription{ID: "rx1", VisitID: "v1", PatientID: "p1", DoctorID: "d1",
			Notes: "take after meals", CreatedAt: time.Now().UTC()},
		PatientName: "Rina",
		DoctorName:  "Dr. Sari",
		Items: []models.PrescriptionItemDetail{
			{PrescriptionItem: models.PrescriptionItem{Dosage: "500mg", Frequency: "3x daily",
				DurationDays: 5, Quantity: 15}, MedicineName: "Paracetamol", MedicineForm: "tablet"},
		},
	}}

	signer := storage.NewSignedURLSigner("signing-secret", time.Hour)
	svc := NewExportService(repo, patients, prescriptions, store, signer, nil, zap.NewNop(), jobs.QueueConfig{Workers: 1})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc, repo, store
}

func waitForStatus(t *testing.T, repo *mockExportRepo, jobID, status string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return repo.status(jobID) == status
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExportServicePatientCSVLifecycle(t *testing.T) {
	svc, repo, store := newExportFixture(t)

	job, err := svc.RequestPatientCSV(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusPending, job.Status)

	waitForStatus(t, repo, job.ID, models.ExportStatusCompleted)

	stored, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	file, err := store.Open(stored.FilePath)
	require.NoError(t, err)
	defer file.Close()
	info, err := file.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServicePrescriptionPDFLifecycle(t *testing.T) {
	svc, repo, _ := newExportFixture(t)

	job, err := svc.RequestPrescriptionPDF(context.Background(), "u1", "rx1")
	require.NoError(t, err)
	require.NotNil(t, job.ResourceID)
	assert.Equal(t, "rx1", *job.ResourceID)

	waitForStatus(t, repo, job.ID, models.ExportStatusCompleted)
}

func TestExportServicePrescriptionPDFUnknownPrescription(t *testing.T) {
	svc, _, _ := newExportFixture(t)

	_, err := svc.RequestPrescriptionPDF(context.Background(), "u1", "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestExportServiceGetJobOwnership(t *testing.T) {
	svc, repo, _ := newExportFixture(t)
	repo.seed(&models.ExportJob{ID: "job-x", Type: models.ExportTypePatientCSV,
		Status: models.ExportStatusPending, RequestedBy: "u1"})

	_, err := svc.GetJob(context.Background(), "job-x", "someone-else")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	owned, err := svc.GetJob(context.Background(), "job-x", "u1")
	require.NoError(t, err)
	assert.Equal(t, "job-x", owned.ID)
}

func TestExportServiceDownloadTokenRequiresCompletion(t *testing.T) {
	svc, repo, _ := newExportFixture(t)
	repo.seed(&models.ExportJob{ID: "job-p", Type: models.ExportTypePatientCSV,
		Status: models.ExportStatusPending, RequestedBy: "u1"})

	_, _, err := svc.DownloadToken(context.Background(), "job-p", "u1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestExportServiceDownloadRoundTrip(t *testing.T) {
	svc, repo, _ := newExportFixture(t)

	job, err := svc.RequestPatientCSV(context.Background(), "u1")
	require.NoError(t, err)
	waitForStatus(t, repo, job.ID, models.ExportStatusCompleted)

	token, expiresAt, err := svc.DownloadToken(context.Background(), job.ID, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	file, relPath, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	defer file.Close()
	assert.NotEmpty(t, relPath)
}

func TestExportServiceResolveDownloadRejectsBadToken(t *testing.T) {
	svc, _, _ := newExportFixture(t)

	_, _, err := svc.ResolveDownload("forged-token")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
