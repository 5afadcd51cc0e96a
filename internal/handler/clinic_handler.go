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

// ClinicHandler exposes clinic endpoints including logo upload.
type ClinicHandler struct {
	clinics *service.ClinicService
	store   *storage.LocalStorage
	uploads config.UploadsConfig
}

// NewClinicHandler constructs ClinicHandler.
func NewClinicHandler(clinics *service.ClinicService, store *storage.LocalStorage, uploads config.UploadsConfig) *ClinicHandler {
	return &ClinicHandler{clinics: clinics, store: store, uploads: uploads}
}

// List godoc
// @Summary List clinics
// @Tags Clinics
// @Produce json
// @Param search query string false "Search by name or city"
// @Param city query string false "Filter by city, 'all' disables"
// @Param active query string false "Filter by active state, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clinics [get]
func (h *ClinicHandler) List(c *gin.Context) {
	var filter models.ClinicFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.City = optionalString(c, "city")
	filter.Active = optionalBool(c, "active")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	clinics, meta, err := h.clinics.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clinics, meta)
}

// Get godoc
// @Summary Get clinic detail
// @Tags Clinics
// @Produce json
// @Param id path string true "Clinic ID"
// @Success 200 {object} response.Envelope
// @Router /clinics/{id} [get]
func (h *ClinicHandler) Get(c *gin.Context) {
	clinic, err := h.clinics.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clinic, nil)
}

// Create godoc
// @Summary Create clinic
// @Tags Clinics
// @Accept json
// @Produce json
// @Param payload body service.CreateClinicRequest true "Clinic payload"
// @Success 201 {object} response.Envelope
// @Router /clinics [post]
func (h *ClinicHandler) Create(c *gin.Context) {
	var req service.CreateClinicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	clinic, err := h.clinics.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, clinic)
}

// Update godoc
// @Summary Update clinic
// @Tags Clinics
// @Accept json
// @Produce json
// @Param id path string true "Clinic ID"
// @Param payload body service.UpdateClinicRequest true "Clinic payload"
// @Success 200 {object} response.Envelope
// @Router /clinics/{id} [put]
func (h *ClinicHandler) Update(c *gin.Context) {
	var req service.UpdateClinicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	clinic, err := h.clinics.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clinic, nil)
}

// UploadLogo godoc
// @Summary Upload clinic logo
// @Tags Clinics
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Clinic ID"
// @Param logo formData file true "Logo file"
// @Success 200 {object} response.Envelope
// @Router /clinics/{id}/logo [post]
func (h *ClinicHandler) UploadLogo(c *gin.Context) {
	id := c.Param("id")

	relPath, err := saveUpload(c, "logo", "clinics/"+id, h.store, h.uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.clinics.SetLogo(c.Request.Context(), id, relPath); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"logo_path": relPath}, nil)
}

// Delete godoc
// @Summary Deactivate clinic
// @Tags Clinics
// @Produce json
// @Param id path string true "Clinic ID"
// @Success 204
// @Router /clinics/{id} [delete]
func (h *ClinicHandler) Delete(c *gin.Context) {
	if err := h.clinics.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
