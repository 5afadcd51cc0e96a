package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
	"github.com/medicore/medicore-api/pkg/export"
	"github.com/medicore/medicore-api/pkg/jobs"
	"github.com/medicore/medicore-api/pkg/storage"
)

type exportRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error)
}

type exportPatientSource interface {
	List(ctx context.Context, filter models.PatientFilter) ([]models.PatientDetail, int, error)
}

type exportPrescriptionSource interface {
	FindByID(ctx context.Context, id string) (*models.PrescriptionDetail, error)
}

// ExportService renders CSV and PDF artifacts off the request path through a
// worker queue and serves them via signed download tokens.
type ExportService struct {
	repo          exportRepository
	patients      exportPatientSource
	prescriptions exportPrescriptionSource
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	store         *storage.LocalStorage
	signer        *storage.SignedURLSigner
	metrics       *MetricsService
	logger        *zap.Logger
	queue         *jobs.Queue
}

// NewExportService constructs the export service and its queue.
func NewExportService(repo exportRepository, patients exportPatientSource, prescriptions exportPrescriptionSource, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		repo:          repo,
		patients:      patients,
		prescriptions: prescriptions,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		store:         store,
		signer:        signer,
		metrics:       metrics,
		logger:        logger,
	}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("exports", s.process, cfg)
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// RequestPatientCSV queues a CSV dump of the patient register.
func (s *ExportService) RequestPatientCSV(ctx context.Context, requestedBy string) (*models.ExportJob, error) {
	job := &models.ExportJob{
		Type:        models.ExportTypePatientCSV,
		Status:      models.ExportStatusPending,
		RequestedBy: requestedBy,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: job.Type}); err != nil {
		s.failJob(ctx, job.ID, job.Type, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export job")
	}
	return job, nil
}

// RequestPrescriptionPDF queues a printable PDF for one prescription.
func (s *ExportService) RequestPrescriptionPDF(ctx context.Context, requestedBy, prescriptionID string) (*models.ExportJob, error) {
	if _, err := s.prescriptions.FindByID(ctx, prescriptionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prescription")
	}
	job := &models.ExportJob{
		Type:        models.ExportTypePrescriptionPDF,
		Status:      models.ExportStatusPending,
		RequestedBy: requestedBy,
		ResourceID:  &prescriptionID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: job.Type, Payload: prescriptionID}); err != nil {
		s.failJob(ctx, job.ID, job.Type, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export job")
	}
	return job, nil
}

// GetJob returns an export job visible to its requester.
func (s *ExportService) GetJob(ctx context.Context, id, requestedBy string) (*models.ExportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.RequestedBy != requestedBy {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}
	return job, nil
}

// ListJobs returns the requester's recent export jobs.
func (s *ExportService) ListJobs(ctx context.Context, requestedBy string, limit int) ([]models.ExportJob, error) {
	jobsList, err := s.repo.ListByUser(ctx, requestedBy, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	return jobsList, nil
}

// DownloadToken issues a signed token for a completed export.
func (s *ExportService) DownloadToken(ctx context.Context, id, requestedBy string) (string, time.Time, error) {
	job, err := s.GetJob(ctx, id, requestedBy)
	if err != nil {
		return "", time.Time{}, err
	}
	if job.Status != models.ExportStatusCompleted || job.FilePath == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "export is not ready")
	}
	token, expiresAt, err := s.signer.Generate(job.ID, job.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, expiresAt, nil
}

// ResolveDownload validates a signed token and opens the artifact.
func (s *ExportService) ResolveDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export artifact no longer available")
	}
	return file, relPath, nil
}

// CleanupArtifacts deletes artifacts older than the TTL.
func (s *ExportService) CleanupArtifacts(ttl time.Duration) {
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export artifacts cleaned", zap.Int("count", len(deleted)))
	}
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	if err := s.repo.MarkRunning(ctx, job.ID); err != nil {
		s.logger.Warn("failed to mark export running", zap.String("job_id", job.ID), zap.Error(err))
	}

	var (
		filePath string
		err      error
	)
	switch job.Type {
	case models.ExportTypePatientCSV:
		filePath, err = s.renderPatientCSV(ctx, job.ID)
	case models.ExportTypePrescriptionPDF:
		id, _ := job.Payload.(string)
		filePath, err = s.renderPrescriptionPDF(ctx, job.ID, id)
	default:
		err = fmt.Errorf("unknown export type %q", job.Type)
	}

	if err != nil {
		s.failJob(ctx, job.ID, job.Type, err)
		return err
	}
	if err := s.repo.MarkCompleted(ctx, job.ID, filePath); err != nil {
		s.logger.Error("failed to mark export completed", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	s.metrics.RecordExportJob(job.Type, models.ExportStatusCompleted)
	return nil
}

func (s *ExportService) failJob(ctx context.Context, jobID, jobType string, cause error) {
	if err := s.repo.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Error("failed to mark export failed", zap.String("job_id", jobID), zap.Error(err))
	}
	s.metrics.RecordExportJob(jobType, models.ExportStatusFailed)
}

func (s *ExportService) renderPatientCSV(ctx context.Context, jobID string) (string, error) {
	headers := []string{"MRN", "Full Name", "Gender", "Birth Date", "Phone", "Email", "Company", "Active"}
	rows := make([]map[string]string, 0, 256)

	filter := models.PatientFilter{Page: 1, PageSize: models.MaxPageSize}
	for {
		patients, total, err := s.patients.List(ctx, filter)
		if err != nil {
			return "", fmt.Errorf("load patients: %w", err)
		}
		for _, p := range patients {
			company := ""
			if p.CompanyName != nil {
				company = *p.CompanyName
			}
			rows = append(rows, map[string]string{
				"MRN":        p.MRN,
				"Full Name":  p.FullName,
				"Gender":     p.Gender,
				"Birth Date": p.BirthDate.Format("2006-01-02"),
				"Phone":      p.Phone,
				"Email":      p.Email,
				"Company":    company,
				"Active":     strconv.FormatBool(p.Active),
			})
		}
		if filter.Page*filter.PageSize >= total || len(patients) == 0 {
			break
		}
		filter.Page++
	}

	data, err := s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("exports/patients-%s.csv", jobID)
	return s.store.Save(filename, data)
}

func (s *ExportService) renderPrescriptionPDF(ctx context.Context, jobID, prescriptionID string) (string, error) {
	if prescriptionID == "" {
		prescriptionID = jobID
	}
	rx, err := s.prescriptions.FindByID(ctx, prescriptionID)
	if err != nil {
		return "", fmt.Errorf("load prescription: %w", err)
	}

	headers := []string{"Medicine", "Form", "Dosage", "Frequency", "Days", "Qty", "Instructions"}
	rows := make([]map[string]string, 0, len(rx.Items))
	for _, item := range rx.Items {
		rows = append(rows, map[string]string{
			"Medicine":     item.MedicineName,
			"Form":         item.MedicineForm,
			"Dosage":       item.Dosage,
			"Frequency":    item.Frequency,
			"Days":         strconv.Itoa(item.DurationDays),
			"Qty":          strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			"Instructions": item.Instructions,
		})
	}

	contextLines := []string{
		fmt.Sprintf("Patient: %s", rx.PatientName),
		fmt.Sprintf("Doctor: %s", rx.DoctorName),
		fmt.Sprintf("Issued: %s", rx.CreatedAt.Format("2006-01-02")),
	}
	if rx.Notes != "" {
		contextLines = append(contextLines, fmt.Sprintf("Notes: %s", rx.Notes))
	}

	data, err := s.pdf.Render(export.Dataset{Headers: headers, Rows: rows}, "Prescription", contextLines...)
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("exports/prescription-%s.pdf", jobID)
	return s.store.Save(filename, data)
}
