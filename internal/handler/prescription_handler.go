package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medicore/medicore-api/internal/models"
	"github.com/medicore/medicore-api/internal/service"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
	"github.com/medicore/medicore-api/pkg/response"
)

// PrescriptionHandler exposes prescription endpoints.
type PrescriptionHandler struct {
	prescriptions *service.PrescriptionService
}

// NewPrescriptionHandler constructs PrescriptionHandler.
func NewPrescriptionHandler(prescriptions *service.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptions: prescriptions}
}

// List godoc
// @Summary List prescriptions
// @Tags Prescriptions
// @Produce json
// @Param search query string false "Search by patient or doctor name"
// @Param doctor_id query string false "Filter by doctor"
// @Param patient_id query string false "Filter by patient"
// @Param visit_id query string false "Filter by visit"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /prescriptions [get]
func (h *PrescriptionHandler) List(c *gin.Context) {
	var filter models.PrescriptionFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.DoctorID = optionalString(c, "doctor_id")
	filter.PatientID = optionalString(c, "patient_id")
	filter.VisitID = optionalString(c, "visit_id")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	prescriptions, meta, err := h.prescriptions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prescriptions, meta)
}

// Get godoc
// @Summary Get prescription with its lines
// @Tags Prescriptions
// @Produce json
// @Param id path string true "Prescription ID"
// @Success 200 {object} response.Envelope
// @Router /prescriptions/{id} [get]
func (h *PrescriptionHandler) Get(c *gin.Context) {
	prescription, err := h.prescriptions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prescription, nil)
}

// Create godoc
// @Summary Issue prescription
// @Tags Prescriptions
// @Accept json
// @Produce json
// @Param payload body service.CreatePrescriptionRequest true "Prescription payload"
// @Success 201 {object} response.Envelope
// @Router /prescriptions [post]
func (h *PrescriptionHandler) Create(c *gin.Context) {
	var req service.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	prescription, err := h.prescriptions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, prescription)
}

// Update godoc
// @Summary Replace prescription lines
// @Tags Prescriptions
// @Accept json
// @Produce json
// @Param id path string true "Prescription ID"
// @Param payload body service.UpdatePrescriptionRequest true "Prescription payload"
// @Success 200 {object} response.Envelope
// @Router /prescriptions/{id} [put]
func (h *PrescriptionHandler) Update(c *gin.Context) {
	var req service.UpdatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	prescription, err := h.prescriptions.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prescription, nil)
}

// Delete godoc
// @Summary Delete prescription
// @Tags Prescriptions
// @Produce json
// @Param id path string true "Prescription ID"
// @Success 204
// @Router /prescriptions/{id} [delete]
func (h *PrescriptionHandler) Delete(c *gin.Context) {
	if err := h.prescriptions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
