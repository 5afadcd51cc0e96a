package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/medicore/medicore-api/internal/service"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
	"github.com/medicore/medicore-api/pkg/response"
)

// AllowSelf is a pseudo permission accepted by RequirePermission. It grants
// access when the :id route parameter matches the authenticated user.
const AllowSelf = "SELF"

// RequirePermission enforces that the authenticated user holds at least one
// of the given permission codes. Codes follow the module.action convention,
// e.g. "patients.view".
func RequirePermission(permissions *service.PermissionService, codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowSelf := false
		required := make([]string, 0, len(codes))
		for _, code := range codes {
			if code == AllowSelf {
				allowSelf = true
				continue
			}
			required = append(required, code)
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		effective, err := permissions.EffectiveCodes(c.Request.Context(), claims.UserID, claims.RoleID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		for _, code := range required {
			if effective[code] {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
