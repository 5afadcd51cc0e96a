package handler

import (
	"bytes"
	"context"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	"github.com/medicore/medicore-api/internal/service"
	"github.com/medicore/medicore-api/pkg/config"
	"github.com/medicore/medicore-api/pkg/storage"
)

type clinicRepoStub struct {
	lastFilter models.ClinicFilter
	clinics    map[string]*models.Clinic
	nameTaken  bool
}

func (s *clinicRepoStub) List(ctx context.Context, filter models.ClinicFilter) ([]models.Clinic, int, error) {
	s.lastFilter = filter
	out := make([]models.Clinic, 0, len(s.clinics))
	for _, c := range s.clinics {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *clinicRepoStub) FindByID(ctx context.Context, id string) (*models.Clinic, error) {
	if c, ok := s.clinics[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *clinicRepoStub) ExistsByNameCity(ctx context.Context, name, city, excludeID string) (bool, error) {
	return s.nameTaken, nil
}

func (s *clinicRepoStub) Create(ctx context.Context, clinic *models.Clinic) error {
	clinic.ID = "c-new"
	if s.clinics == nil {
		s.clinics = make(map[string]*models.Clinic)
	}
	s.clinics[clinic.ID] = clinic
	return nil
}

func (s *clinicRepoStub) Update(ctx context.Context, clinic *models.Clinic) error {
	s.clinics[clinic.ID] = clinic
	return nil
}

func (s *clinicRepoStub) Deactivate(ctx context.Context, id string) error {
	if _, ok := s.clinics[id]; !ok {
		return sql.ErrNoRows
	}
	s.clinics[id].Active = false
	return nil
}

func newClinicRouter(t *testing.T, repo *clinicRepoStub) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	uploads := config.UploadsConfig{AllowedMIMEs: []string{"image/png", "image/jpeg"}}
	svc := service.NewClinicService(repo, nil, nil, zap.NewNop())
	h := NewClinicHandler(svc, store, uploads)

	router := gin.New()
	router.GET("/clinics", h.List)
	router.GET("/clinics/:id", h.Get)
	router.POST("/clinics", h.Create)
	router.PUT("/clinics/:id", h.Update)
	router.POST("/clinics/:id/logo", h.UploadLogo)
	router.DELETE("/clinics/:id", h.Delete)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestClinicListDropsSentinelFilters(t *testing.T) {
	repo := &clinicRepoStub{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", City: "Jakarta", Active: true},
	}}
	router := newClinicRouter(t, repo)

	req, _ := http.NewRequest(http.MethodGet, "/clinics?city=all&active=&search=+rina+&page=2&page_size=5&sort_by=name&sort_order=asc", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	// "all" and empty values never reach the repository as filters.
	assert.Nil(t, repo.lastFilter.City)
	assert.Nil(t, repo.lastFilter.Active)
	assert.Equal(t, "rina", repo.lastFilter.Search)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 5, repo.lastFilter.PageSize)
	assert.Equal(t, "name", repo.lastFilter.SortBy)
	assert.Equal(t, "asc", repo.lastFilter.SortOrder)
	assert.Contains(t, resp.Body.String(), `"meta"`)
}

func TestClinicListAppliesConcreteFilters(t *testing.T) {
	repo := &clinicRepoStub{}
	router := newClinicRouter(t, repo)

	req, _ := http.NewRequest(http.MethodGet, "/clinics?city=Jakarta&active=true", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	require.NotNil(t, repo.lastFilter.City)
	assert.Equal(t, "Jakarta", *repo.lastFilter.City)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)
}

func TestClinicGetNotFoundEnvelope(t *testing.T) {
	router := newClinicRouter(t, &clinicRepoStub{})

	req, _ := http.NewRequest(http.MethodGet, "/clinics/missing", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"NOT_FOUND"`)
}

func TestClinicCreateValidationError(t *testing.T) {
	router := newClinicRouter(t, &clinicRepoStub{})

	req, _ := http.NewRequest(http.MethodPost, "/clinics", bytes.NewBufferString(`{"name":"Central"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"VALIDATION_ERROR"`)
}

func TestClinicCreateConflict(t *testing.T) {
	router := newClinicRouter(t, &clinicRepoStub{nameTaken: true})

	req, _ := http.NewRequest(http.MethodPost, "/clinics", bytes.NewBufferString(`{"name":"Central","city":"Jakarta"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"CONFLICT"`)
}

func TestClinicCreateSuccess(t *testing.T) {
	repo := &clinicRepoStub{}
	router := newClinicRouter(t, repo)

	req, _ := http.NewRequest(http.MethodPost, "/clinics", bytes.NewBufferString(`{"name":"Central","city":"Jakarta"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"c-new"`)
}

func multipartFile(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestClinicUploadLogoStoresFile(t *testing.T) {
	repo := &clinicRepoStub{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", City: "Jakarta", Active: true},
	}}
	router := newClinicRouter(t, repo)

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 32)...)
	body, contentType := multipartFile(t, "logo", "logo.png", png)
	req, _ := http.NewRequest(http.MethodPost, "/clinics/c1/logo", body)
	req.Header.Set("Content-Type", contentType)

	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"logo_path"`)
	assert.Contains(t, repo.clinics["c1"].LogoPath, "clinics/c1/")
}

func TestClinicUploadLogoRejectsUnsupportedType(t *testing.T) {
	repo := &clinicRepoStub{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", City: "Jakarta", Active: true},
	}}
	router := newClinicRouter(t, repo)

	body, contentType := multipartFile(t, "logo", "logo.txt", []byte("plain text, not an image"))
	req, _ := http.NewRequest(http.MethodPost, "/clinics/c1/logo", body)
	req.Header.Set("Content-Type", contentType)

	resp := performRequest(router, req)
	require.Equal(t, http.StatusUnsupportedMediaType, resp.Code)
	assert.Empty(t, repo.clinics["c1"].LogoPath)
}

func TestClinicDeleteNoContent(t *testing.T) {
	repo := &clinicRepoStub{clinics: map[string]*models.Clinic{
		"c1": {ID: "c1", Name: "Central", City: "Jakarta", Active: true},
	}}
	router := newClinicRouter(t, repo)

	req, _ := http.NewRequest(http.MethodDelete, "/clinics/c1", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.False(t, repo.clinics["c1"].Active)
}
