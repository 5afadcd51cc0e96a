package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medicore/medicore-api/internal/models"
	"github.com/medicore/medicore-api/internal/service"
	"github.com/medicore/medicore-api/pkg/config"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
	"github.com/medicore/medicore-api/pkg/response"
	"github.com/medicore/medicore-api/pkg/storage"
)

// PatientHandler exposes patient endpoints including photo upload.
type PatientHandler struct {
	patients *service.PatientService
	store    *storage.LocalStorage
	uploads  config.UploadsConfig
}

// NewPatientHandler constructs PatientHandler.
func NewPatientHandler(patients *service.PatientService, store *storage.LocalStorage, uploads config.UploadsConfig) *PatientHandler {
	return &PatientHandler{patients: patients, store: store, uploads: uploads}
}

// List godoc
// @Summary List patients
// @Tags Patients
// @Produce json
// @Param search query string false "Search by name, MRN, phone or email"
// @Param company_id query string false "Filter by company, 'all' disables"
// @Param gender query string false "Filter by gender, 'all' disables"
// @Param active query string false "Filter by active state, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /patients [get]
func (h *PatientHandler) List(c *gin.Context) {
	var filter models.PatientFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.CompanyID = optionalString(c, "company_id")
	filter.Gender = optionalString(c, "gender")
	filter.Active = optionalBool(c, "active")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	patients, meta, err := h.patients.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patients, meta)
}

// Get godoc
// @Summary Get patient detail
// @Tags Patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 200 {object} response.Envelope
// @Router /patients/{id} [get]
func (h *PatientHandler) Get(c *gin.Context) {
	patient, err := h.patients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patient, nil)
}

// Create godoc
// @Summary Register patient
// @Tags Patients
// @Accept json
// @Produce json
// @Param payload body service.CreatePatientRequest true "Patient payload"
// @Success 201 {object} response.Envelope
// @Router /patients [post]
func (h *PatientHandler) Create(c *gin.Context) {
	var req service.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	patient, err := h.patients.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, patient)
}

// Update godoc
// @Summary Update patient
// @Tags Patients
// @Accept json
// @Produce json
// @Param id path string true "Patient ID"
// @Param payload body service.UpdatePatientRequest true "Patient payload"
// @Success 200 {object} response.Envelope
// @Router /patients/{id} [put]
func (h *PatientHandler) Update(c *gin.Context) {
	var req service.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	patient, err := h.patients.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patient, nil)
}

// UploadPhoto godoc
// @Summary Upload patient photo
// @Tags Patients
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Patient ID"
// @Param photo formData file true "Photo file"
// @Success 200 {object} response.Envelope
// @Router /patients/{id}/photo [post]
func (h *PatientHandler) UploadPhoto(c *gin.Context) {
	id := c.Param("id")

	relPath, err := saveUpload(c, "photo", "patients/"+id, h.store, h.uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.patients.SetPhoto(c.Request.Context(), id, relPath); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"photo_path": relPath}, nil)
}

// Delete godoc
// @Summary Deactivate patient
// @Tags Patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 204
// @Router /patients/{id} [delete]
func (h *PatientHandler) Delete(c *gin.Context) {
	if err := h.patients.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
