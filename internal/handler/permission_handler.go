package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medicore/medicore-api/internal/models"
	"github.com/medicore/medicore-api/internal/service"
	"github.com/medicore/medicore-api/pkg/response"
)

// PermissionHandler exposes the permission catalog.
type PermissionHandler struct {
	permissions *service.PermissionService
}

// NewPermissionHandler constructs PermissionHandler.
func NewPermissionHandler(permissions *service.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// List godoc
// @Summary List permissions
// @Tags Permissions
// @Produce json
// @Param search query string false "Search by module or action"
// @Param module query string false "Filter by module, 'all' disables"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /permissions [get]
func (h *PermissionHandler) List(c *gin.Context) {
	var filter models.PermissionFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Module = optionalString(c, "module")
	filter.Page, filter.PageSize, _, _ = pageParams(c)

	permissions, meta, err := h.permissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permissions, meta)
}

// Catalog godoc
// @Summary Full permission catalog grouped by module
// @Tags Permissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /permissions/catalog [get]
func (h *PermissionHandler) Catalog(c *gin.Context) {
	catalog, err := h.permissions.Catalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, catalog, nil)
}
