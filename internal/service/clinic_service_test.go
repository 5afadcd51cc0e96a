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

type mockClinicRepo struct {
	clinics   map[string]*models.Clinic
	nameTaken bool
	listCalls int
}

func (m *mockClinicRepo) List(ctx context.Context, filter models.ClinicFilter) ([]models.Clinic, int, error) {
	m.listCalls++
	out := make([]models.Clinic, 0, len(m.clinics))
	for _, c := range m.clinics {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockClinicRepo) FindByID(ctx context.Context, id string) (*models.Clinic, error) {
	if c, ok := m.clinics[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClinicRepo) ExistsByNameCity(ctx context.Context, name, city, excludeID string) (bool, error) {
	return m.nameTaken, nil
}

func (m *mockClinicRepo) Create(ctx context.Context, clinic *models.Clinic) error {
	clinic.ID = "c-new"
	if m.clinics == nil {
		m.clinics = make(map[string]*models.Clinic)
	}
	m.clinics[clinic.ID] = clinic
	return nil
}

func (m *mockClinicRepo) Update(ctx context.Context, clinic *models.Clinic) error {
	m.clinics[clinic.ID] = clinic
	return nil
}

func (m *mockClinicRepo) Deactivate(ctx context.Context, id string) error {
	if c, ok := m.clinics[id]; ok {
		c.Active = false
	}
	return nil
}

func TestClinicServiceCreateRejectsDuplicate(t *testing.T) {
	repo := &mockClinicRepo{nameTaken: true}
	svc := NewClinicService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateClinicRequest{Name: "Central", City: "Jakarta"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestClinicServiceCreateRejectsBadEmail(t *testing.T) {
	repo := &mockClinicRepo{}
	svc := NewClinicService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateClinicRequest{Name: "Central", City: "Jakarta", Email: "not-an-email"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestClinicServiceListCachesPages(t *testing.T) {
	repo := &mockClinicRepo{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", City: "Jakarta", Active: true},
	}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewClinicService(repo, cache, validator.New(), zap.NewNop())

	_, meta, err := svc.List(context.Background(), models.ClinicFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Total)
	assert.Equal(t, 1, repo.listCalls)

	// Second identical query is served from cache.
	clinics, _, err := svc.List(context.Background(), models.ClinicFilter{})
	require.NoError(t, err)
	assert.Len(t, clinics, 1)
	assert.Equal(t, 1, repo.listCalls)

	// A different filter shape misses and goes back to the database.
	city := "Jakarta"
	_, _, err = svc.List(context.Background(), models.ClinicFilter{City: &city})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestClinicServiceCreateInvalidatesListCache(t *testing.T) {
	repo := &mockClinicRepo{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", City: "Jakarta", Active: true},
	}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewClinicService(repo, cache, validator.New(), zap.NewNop())

	_, _, err := svc.List(context.Background(), models.ClinicFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(context.Background(), CreateClinicRequest{Name: "North", City: "Jakarta"})
	require.NoError(t, err)

	// The cached page was evicted by the mutation, so the next list hits the
	// database and sees the new row.
	clinics, _, err := svc.List(context.Background(), models.ClinicFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Len(t, clinics, 2)
}

func TestClinicServiceDeactivateNotFound(t *testing.T) {
	repo := &mockClinicRepo{}
	svc := NewClinicService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Deactivate(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
