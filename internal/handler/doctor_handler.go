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

// DoctorHandler exposes doctor endpoints including clinic assignment.
type DoctorHandler struct {
	doctors *service.DoctorService
}

// NewDoctorHandler constructs DoctorHandler.
func NewDoctorHandler(doctors *service.DoctorService) *DoctorHandler {
	return &DoctorHandler{doctors: doctors}
}

// List godoc
// @Summary List doctors
// @Tags Doctors
// @Produce json
// @Param search query string false "Search by name or license"
// @Param specialty query string false "Filter by specialty, 'all' disables"
// @Param clinic_id query string false "Filter by clinic assignment"
// @Param active query string false "Filter by active state, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /doctors [get]
func (h *DoctorHandler) List(c *gin.Context) {
	var filter models.DoctorFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Specialty = optionalString(c, "specialty")
	filter.ClinicID = optionalString(c, "clinic_id")
	filter.Active = optionalBool(c, "active")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	doctors, meta, err := h.doctors.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doctors, meta)
}

// Get godoc
// @Summary Get doctor detail with clinic assignments
// @Tags Doctors
// @Produce json
// @Param id path string true "Doctor ID"
// @Success 200 {object} response.Envelope
// @Router /doctors/{id} [get]
func (h *DoctorHandler) Get(c *gin.Context) {
	doctor, err := h.doctors.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doctor, nil)
}

// Create godoc
// @Summary Create doctor
// @Tags Doctors
// @Accept json
// @Produce json
// @Param payload body service.CreateDoctorRequest true "Doctor payload"
// @Success 201 {object} response.Envelope
// @Router /doctors [post]
func (h *DoctorHandler) Create(c *gin.Context) {
	var req service.CreateDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doctor, err := h.doctors.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doctor)
}

// Update godoc
// @Summary Update doctor and reconcile clinic assignments
// @Tags Doctors
// @Accept json
// @Produce json
// @Param id path string true "Doctor ID"
// @Param payload body service.UpdateDoctorRequest true "Doctor payload"
// @Success 200 {object} response.Envelope
// @Router /doctors/{id} [put]
func (h *DoctorHandler) Update(c *gin.Context) {
	var req service.UpdateDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doctor, err := h.doctors.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doctor, nil)
}

// AssignClinics godoc
// @Summary Replace a doctor's clinic assignments
// @Tags Doctors
// @Accept json
// @Produce json
// @Param id path string true "Doctor ID"
// @Param payload body []models.ClinicSelection true "Desired assignments"
// @Success 200 {object} response.Envelope
// @Router /doctors/{id}/clinics [put]
func (h *DoctorHandler) AssignClinics(c *gin.Context) {
	var selections []models.ClinicSelection
	if err := c.ShouldBindJSON(&selections); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignments, err := h.doctors.AssignClinics(c.Request.Context(), c.Param("id"), selections)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Delete godoc
// @Summary Deactivate doctor and retire assignments
// @Tags Doctors
// @Produce json
// @Param id path string true "Doctor ID"
// @Success 204
// @Router /doctors/{id} [delete]
func (h *DoctorHandler) Delete(c *gin.Context) {
	if err := h.doctors.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
