package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/medicore-api/internal/models"
)

func TestDoctorClinicRepositoryListByDoctorIncludesInactive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDoctorClinicRepository(db)

	rows := sqlmock.NewRows([]string{"id", "doctor_id", "clinic_id", "consultation_fee", "followup_fee", "active", "created_at", "updated_at"}).
		AddRow("a1", "d1", "c1", 150.0, 100.0, true, time.Now(), time.Now()).
		AddRow("a2", "d1", "c2", 200.0, 120.0, false, time.Now(), time.Now())
	mock.ExpectQuery("FROM doctor_clinics WHERE doctor_id = \\$1").
		WithArgs("d1").
		WillReturnRows(rows)

	assignments, err := repo.ListByDoctor(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.False(t, assignments[1].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorClinicRepositoryUpdateFeesReactivates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDoctorClinicRepository(db)

	mock.ExpectExec("UPDATE doctor_clinics SET consultation_fee = \\$2, followup_fee = \\$3, active = true").
		WithArgs("a1", 175.0, 110.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateFees(context.Background(), "a1", 175, 110))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorClinicRepositorySetActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDoctorClinicRepository(db)

	mock.ExpectExec("UPDATE doctor_clinics SET active = \\$2").
		WithArgs("a1", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetActive(context.Background(), "a1", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorClinicRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDoctorClinicRepository(db)

	mock.ExpectExec("INSERT INTO doctor_clinics").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.DoctorClinic{DoctorID: "d1", ClinicID: "c1", ConsultationFee: 150, Active: true}
	require.NoError(t, repo.Create(context.Background(), assignment))
	assert.NotEmpty(t, assignment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
