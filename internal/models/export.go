package models

import "time"

// Export job statuses.
const (
	ExportStatusPending   = "pending"
	ExportStatusRunning   = "running"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// Export job types.
const (
	ExportTypePatientCSV      = "patients_csv"
	ExportTypePrescriptionPDF = "prescription_pdf"
)

// ExportJob tracks an asynchronous CSV/PDF generation request.
type ExportJob struct {
	ID          string     `db:"id" json:"id"`
	Type        string     `db:"type" json:"type"`
	Status      string     `db:"status" json:"status"`
	RequestedBy string     `db:"requested_by" json:"requested_by"`
	ResourceID  *string    `db:"resource_id" json:"resource_id,omitempty"`
	FilePath    string     `db:"file_path" json:"-"`
	Error       string     `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
