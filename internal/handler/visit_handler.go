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

// VisitHandler exposes clinical encounter endpoints including lab result
// document upload.
type VisitHandler struct {
	visits  *service.VisitService
	store   *storage.LocalStorage
	uploads config.UploadsConfig
}

// NewVisitHandler constructs VisitHandler.
func NewVisitHandler(visits *service.VisitService, store *storage.LocalStorage, uploads config.UploadsConfig) *VisitHandler {
	return &VisitHandler{visits: visits, store: store, uploads: uploads}
}

// List godoc
// @Summary List visits
// @Tags Visits
// @Produce json
// @Param search query string false "Search by patient or doctor name"
// @Param doctor_id query string false "Filter by doctor"
// @Param patient_id query string false "Filter by patient"
// @Param clinic_id query string false "Filter by clinic"
// @Param status query string false "Filter by status, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /visits [get]
func (h *VisitHandler) List(c *gin.Context) {
	var filter models.VisitFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.DoctorID = optionalString(c, "doctor_id")
	filter.PatientID = optionalString(c, "patient_id")
	filter.ClinicID = optionalString(c, "clinic_id")
	filter.Status = optionalString(c, "status")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	visits, meta, err := h.visits.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visits, meta)
}

// Get godoc
// @Summary Get visit detail
// @Tags Visits
// @Produce json
// @Param id path string true "Visit ID"
// @Success 200 {object} response.Envelope
// @Router /visits/{id} [get]
func (h *VisitHandler) Get(c *gin.Context) {
	visit, err := h.visits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visit, nil)
}

// Create godoc
// @Summary Open visit
// @Tags Visits
// @Accept json
// @Produce json
// @Param payload body service.CreateVisitRequest true "Visit payload"
// @Success 201 {object} response.Envelope
// @Router /visits [post]
func (h *VisitHandler) Create(c *gin.Context) {
	var req service.CreateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	visit, err := h.visits.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, visit)
}

// Update godoc
// @Summary Update visit findings and status
// @Tags Visits
// @Accept json
// @Produce json
// @Param id path string true "Visit ID"
// @Param payload body service.UpdateVisitRequest true "Visit payload"
// @Success 200 {object} response.Envelope
// @Router /visits/{id} [put]
func (h *VisitHandler) Update(c *gin.Context) {
	var req service.UpdateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	visit, err := h.visits.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, visit, nil)
}

// UploadResultDocument godoc
// @Summary Upload lab result document for a visit
// @Tags Visits
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Visit ID"
// @Param document formData file true "Result document"
// @Success 200 {object} response.Envelope
// @Router /visits/{id}/document [post]
func (h *VisitHandler) UploadResultDocument(c *gin.Context) {
	id := c.Param("id")

	relPath, err := saveUpload(c, "document", "visits/"+id, h.store, h.uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.visits.SetResultDocument(c.Request.Context(), id, relPath); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"result_doc_path": relPath}, nil)
}
