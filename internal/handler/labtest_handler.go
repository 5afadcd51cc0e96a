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

// LabTestHandler exposes lab test catalog endpoints.
type LabTestHandler struct {
	labTests *service.LabTestService
}

// NewLabTestHandler constructs LabTestHandler.
func NewLabTestHandler(labTests *service.LabTestService) *LabTestHandler {
	return &LabTestHandler{labTests: labTests}
}

// List godoc
// @Summary List lab tests
// @Tags LabTests
// @Produce json
// @Param search query string false "Search by name or code"
// @Param category query string false "Filter by category, 'all' disables"
// @Param active query string false "Filter by active state, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lab-tests [get]
func (h *LabTestHandler) List(c *gin.Context) {
	var filter models.LabTestFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Category = optionalString(c, "category")
	filter.Active = optionalBool(c, "active")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = pageParams(c)

	labTests, meta, err := h.labTests.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, labTests, meta)
}

// Get godoc
// @Summary Get lab test detail
// @Tags LabTests
// @Produce json
// @Param id path string true "Lab test ID"
// @Success 200 {object} response.Envelope
// @Router /lab-tests/{id} [get]
func (h *LabTestHandler) Get(c *gin.Context) {
	labTest, err := h.labTests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, labTest, nil)
}

// Create godoc
// @Summary Add lab test to catalog
// @Tags LabTests
// @Accept json
// @Produce json
// @Param payload body service.CreateLabTestRequest true "Lab test payload"
// @Success 201 {object} response.Envelope
// @Router /lab-tests [post]
func (h *LabTestHandler) Create(c *gin.Context) {
	var req service.CreateLabTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	labTest, err := h.labTests.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, labTest)
}

// Update godoc
// @Summary Edit lab test
// @Tags LabTests
// @Accept json
// @Produce json
// @Param id path string true "Lab test ID"
// @Param payload body service.UpdateLabTestRequest true "Lab test payload"
// @Success 200 {object} response.Envelope
// @Router /lab-tests/{id} [put]
func (h *LabTestHandler) Update(c *gin.Context) {
	var req service.UpdateLabTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	labTest, err := h.labTests.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, labTest, nil)
}

// Delete godoc
// @Summary Retire lab test
// @Tags LabTests
// @Produce json
// @Param id path string true "Lab test ID"
// @Success 204
// @Router /lab-tests/{id} [delete]
func (h *LabTestHandler) Delete(c *gin.Context) {
	if err := h.labTests.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
