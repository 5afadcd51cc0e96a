package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	"github.com/medicore/medicore-api/internal/service"
)

type permissionRepoStub struct {
	roleCodes []string
	allow     []string
	deny      []string
}

func (s *permissionRepoStub) List(ctx context.Context, filter models.PermissionFilter) ([]models.Permission, int, error) {
	return nil, 0, nil
}

func (s *permissionRepoStub) ListAll(ctx context.Context) ([]models.Permission, error) {
	return nil, nil
}

func (s *permissionRepoStub) FindByID(ctx context.Context, id string) (*models.Permission, error) {
	return nil, sql.ErrNoRows
}

func (s *permissionRepoStub) ListRoleCodes(ctx context.Context, roleID string) ([]string, error) {
	return s.roleCodes, nil
}

func (s *permissionRepoStub) ListUserOverrideCodes(ctx context.Context, userID string) ([]string, []string, error) {
	return s.allow, s.deny, nil
}

func (s *permissionRepoStub) ListUserOverridesAll(ctx context.Context, userID string) ([]models.UserPermission, error) {
	return nil, nil
}

func (s *permissionRepoStub) CreateUserOverride(ctx context.Context, override *models.UserPermission) error {
	return nil
}

func (s *permissionRepoStub) UpdateUserOverride(ctx context.Context, overrideID, effect string, active bool) error {
	return nil
}

func newRBACRouter(repo *permissionRepoStub, codes ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	permissions := service.NewPermissionService(repo, nil, nil, zap.NewNop())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User"); userID != "" {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: userID, RoleID: "r1"})
		}
		c.Next()
	})
	router.GET("/users/:id", RequirePermission(permissions, codes...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func doRBAC(router *gin.Engine, path, userID string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRequirePermissionUnauthenticated(t *testing.T) {
	router := newRBACRouter(&permissionRepoStub{}, "users.view")

	resp := doRBAC(router, "/users/u1", "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRequirePermissionGranted(t *testing.T) {
	router := newRBACRouter(&permissionRepoStub{roleCodes: []string{"users.view"}}, "users.view")

	resp := doRBAC(router, "/users/u2", "u1")
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRequirePermissionDenied(t *testing.T) {
	router := newRBACRouter(&permissionRepoStub{roleCodes: []string{"patients.view"}}, "users.view")

	resp := doRBAC(router, "/users/u2", "u1")
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"FORBIDDEN"`)
}

func TestRequirePermissionDenyOverrideBeatsGrant(t *testing.T) {
	repo := &permissionRepoStub{
		roleCodes: []string{"users.view"},
		deny:      []string{"users.view"},
	}
	router := newRBACRouter(repo, "users.view")

	resp := doRBAC(router, "/users/u2", "u1")
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRequirePermissionSelfAccess(t *testing.T) {
	// No grants at all, but the target resource is the caller's own record.
	router := newRBACRouter(&permissionRepoStub{}, "users.view", AllowSelf)

	resp := doRBAC(router, "/users/u1", "u1")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRBAC(router, "/users/u2", "u1")
	require.Equal(t, http.StatusForbidden, resp.Code)
}
