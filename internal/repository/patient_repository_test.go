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

func patientRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "mrn", "full_name", "gender", "birth_date", "phone", "email", "address",
		"company_id", "photo_path", "active", "created_at", "updated_at", "company_name"}).
		AddRow("p1", "MRN-001", "Rina", "f", time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC), "0812", "rina@x.id", "",
			nil, "", true, time.Now(), time.Now(), nil)
}

func TestPatientRepositoryListJoinsCompany(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectQuery("FROM patients p LEFT JOIN companies c ON c.id = p.company_id WHERE 1=1 ORDER BY p.created_at DESC LIMIT 20 OFFSET 0").
		WillReturnRows(patientRows())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM patients p").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	patients, total, err := repo.List(context.Background(), models.PatientFilter{})
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, 1, total)
	assert.Nil(t, patients[0].CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepositoryListSearchesNameAndMRN(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	gender := "f"
	mock.ExpectQuery("WHERE 1=1 AND p.gender = \\$1 AND \\(LOWER\\(p.full_name\\) LIKE \\$2 OR LOWER\\(p.mrn\\) LIKE \\$2\\) ORDER BY p.full_name ASC").
		WithArgs("f", "%rina%").
		WillReturnRows(patientRows())
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("f", "%rina%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, total, err := repo.List(context.Background(), models.PatientFilter{
		Gender:    &gender,
		Search:    "Rina",
		SortBy:    "full_name",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepositoryExistsByMRNExcludesSelf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectQuery("SELECT 1 FROM patients WHERE mrn = \\$1 AND id <> \\$2 LIMIT 1").
		WithArgs("MRN-001", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByMRN(context.Background(), "MRN-001", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectExec("INSERT INTO patients").
		WillReturnResult(sqlmock.NewResult(1, 1))

	patient := &models.Patient{MRN: "MRN-002", FullName: "Budi", Gender: "m",
		BirthDate: time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC), Active: true}
	require.NoError(t, repo.Create(context.Background(), patient))
	assert.NotEmpty(t, patient.ID)
	assert.False(t, patient.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectExec("UPDATE patients SET active = false").
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
