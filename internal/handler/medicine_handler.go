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

// MedicineHandler exposes medicine catalog endpoints.
type MedicineHandler struct {
	medicines *service.MedicineService
}

// NewMedicineHandler constructs MedicineHandler.
func NewMedicineHandler(medicines *service.MedicineService) *MedicineHandler {
	return &MedicineHandler{medicines: medicines}
}

// List godoc
// @Summary List medicines
// @Tags Medicines
// @Produce json
// @Param search query string false "Search by name or SKU"
// @Param form query string false "Filter by form, 'all' disables"
// @Param active query string false "Filter by active state, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /medicines [get]
func (h *MedicineHandler) List(c *gin.Context) {
	var filter models.MedicineFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Form = optionalString(c, "form")
	filter.Active = optionalBool(c, "active")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	medicines, meta, err := h.medicines.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, medicines, meta)
}

// Get godoc
// @Summary Get medicine detail
// @Tags Medicines
// @Produce json
// @Param id path string true "Medicine ID"
// @Success 200 {object} response.Envelope
// @Router /medicines/{id} [get]
func (h *MedicineHandler) Get(c *gin.Context) {
	medicine, err := h.medicines.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, medicine, nil)
}

// Create godoc
// @Summary Add medicine to catalog
// @Tags Medicines
// @Accept json
// @Produce json
// @Param payload body service.CreateMedicineRequest true "Medicine payload"
// @Success 201 {object} response.Envelope
// @Router /medicines [post]
func (h *MedicineHandler) Create(c *gin.Context) {
	var req service.CreateMedicineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	medicine, err := h.medicines.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, medicine)
}

// Update godoc
// @Summary Edit medicine
// @Tags Medicines
// @Accept json
// @Produce json
// @Param id path string true "Medicine ID"
// @Param payload body service.UpdateMedicineRequest true "Medicine payload"
// @Success 200 {object} response.Envelope
// @Router /medicines/{id} [put]
func (h *MedicineHandler) Update(c *gin.Context) {
	var req service.UpdateMedicineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	medicine, err := h.medicines.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, medicine, nil)
}

// Delete godoc
// @Summary Retire medicine
// @Tags Medicines
// @Produce json
// @Param id path string true "Medicine ID"
// @Success 204
// @Router /medicines/{id} [delete]
func (h *MedicineHandler) Delete(c *gin.Context) {
	if err := h.medicines.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
