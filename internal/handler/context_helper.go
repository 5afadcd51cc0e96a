package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medicore/medicore-api/internal/middleware"
	"github.com/medicore/medicore-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// pageParams reads the shared pagination and sorting query parameters.
func pageParams(c *gin.Context) (page, size int, sortBy, sortOrder string) {
	page = 1
	size = models.DefaultPageSize
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		size = v
	}
	return page, size, c.Query("sort_by"), c.Query("sort_order")
}

// optionalString decodes an enum-style filter parameter. An absent value and
// the "all" sentinel both mean no filtering, so the pointer stays nil and the
// query omits the clause entirely.
func optionalString(c *gin.Context, name string) *string {
	value := strings.TrimSpace(c.Query(name))
	if value == "" || strings.EqualFold(value, "all") {
		return nil
	}
	return &value
}

// optionalBool decodes an active-style filter with the same "all" sentinel.
func optionalBool(c *gin.Context, name string) *bool {
	value := strings.TrimSpace(c.Query(name))
	if value == "" || strings.EqualFold(value, "all") {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &parsed
}

// optionalDate decodes a YYYY-MM-DD filter parameter.
func optionalDate(c *gin.Context, name string) *time.Time {
	value := strings.TrimSpace(c.Query(name))
	if value == "" || strings.EqualFold(value, "all") {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return &parsed
}
