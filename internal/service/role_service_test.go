package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type mockRoleRepo struct {
	roles        map[string]*models.Role
	nameTaken    bool
	userCount    int
	grants       []models.RolePermission
	created      []models.RolePermission
	activated    []string
	deactivated  []string
	grantErrFor  string
	nextID       int
}

func (m *mockRoleRepo) List(ctx context.Context, filter models.RoleFilter) ([]models.Role, int, error) {
	out := make([]models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockRoleRepo) FindByID(ctx context.Context, id string) (*models.Role, error) {
	if r, ok := m.roles[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoleRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return m.nameTaken, nil
}

func (m *mockRoleRepo) Create(ctx context.Context, role *models.Role) error {
	role.ID = "r-new"
	if m.roles == nil {
		m.roles = make(map[string]*models.Role)
	}
	m.roles[role.ID] = role
	return nil
}

func (m *mockRoleRepo) Update(ctx context.Context, role *models.Role) error {
	m.roles[role.ID] = role
	return nil
}

func (m *mockRoleRepo) Deactivate(ctx context.Context, id string) error {
	if r, ok := m.roles[id]; ok {
		r.Active = false
	}
	return nil
}

func (m *mockRoleRepo) CountUsers(ctx context.Context, roleID string) (int, error) {
	return m.userCount, nil
}

func (m *mockRoleRepo) ListGrants(ctx context.Context, roleID string) ([]models.RolePermission, error) {
	out := make([]models.RolePermission, 0, len(m.grants))
	for _, g := range m.grants {
		if g.RoleID == roleID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockRoleRepo) CreateGrant(ctx context.Context, grant *models.RolePermission) error {
	if m.grantErrFor != "" && grant.PermissionID == m.grantErrFor {
		return errors.New("insert failed")
	}
	m.nextID++
	grant.ID = "g-new-" + strconv.Itoa(m.nextID)
	m.grants = append(m.grants, *grant)
	m.created = append(m.created, *grant)
	return nil
}

func (m *mockRoleRepo) SetGrantActive(ctx context.Context, grantID string, active bool) error {
	if active {
		m.activated = append(m.activated, grantID)
	} else {
		m.deactivated = append(m.deactivated, grantID)
	}
	for i := range m.grants {
		if m.grants[i].ID == grantID {
			m.grants[i].Active = active
		}
	}
	return nil
}

type mockPermissionLookup struct {
	known map[string]string
}

func (m *mockPermissionLookup) FindByID(ctx context.Context, id string) (*models.Permission, error) {
	if _, ok := m.known[id]; !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Permission{ID: id}, nil
}

func (m *mockPermissionLookup) ListRoleCodes(ctx context.Context, roleID string) ([]string, error) {
	var codes []string
	for _, code := range m.known {
		codes = append(codes, code)
	}
	return codes, nil
}

func newRoleFixture() (*RoleService, *mockRoleRepo) {
	repo := &mockRoleRepo{
		roles: map[string]*models.Role{
			"r1": {ID: "r1", Name: "Front Desk", Active: true},
		},
		grants: []models.RolePermission{
			{ID: "g1", RoleID: "r1", PermissionID: "p1", Active: true},
			{ID: "g2", RoleID: "r1", PermissionID: "p2", Active: true},
			{ID: "g3", RoleID: "r1", PermissionID: "p3", Active: false},
		},
	}
	permissions := &mockPermissionLookup{known: map[string]string{
		"p1": "patients.view",
		"p2": "patients.manage",
		"p3": "appointments.view",
		"p4": "appointments.manage",
	}}
	svc := NewRoleService(repo, permissions, nil, validator.New(), zap.NewNop())
	return svc, repo
}

func TestRoleServiceSyncPermissionsReconciles(t *testing.T) {
	svc, repo := newRoleFixture()

	// Keep p1, revive p3, add p4. p2 drops out.
	_, err := svc.SyncPermissions(context.Background(), "r1", []string{"p1", "p3", "p4"})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "p4", repo.created[0].PermissionID)
	assert.True(t, repo.created[0].Active)
	assert.Equal(t, []string{"g3"}, repo.activated)
	assert.Equal(t, []string{"g2"}, repo.deactivated)
}

func TestRoleServiceSyncPermissionsResubmitAfterFailure(t *testing.T) {
	svc, repo := newRoleFixture()
	repo.grantErrFor = "p4"

	_, err := svc.SyncPermissions(context.Background(), "r1", []string{"p1", "p4"})
	require.Error(t, err)
	assert.Empty(t, repo.deactivated)

	repo.grantErrFor = ""
	_, err = svc.SyncPermissions(context.Background(), "r1", []string{"p1", "p4"})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "p4", repo.created[0].PermissionID)
	assert.Equal(t, []string{"g2"}, repo.deactivated)
}

func TestRoleServiceSyncPermissionsRejectsBadSelections(t *testing.T) {
	svc, _ := newRoleFixture()

	for _, tc := range []struct {
		name string
		ids  []string
	}{
		{"duplicate permission", []string{"p1", "p1"}},
		{"unknown permission", []string{"p1", "missing"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SyncPermissions(context.Background(), "r1", tc.ids)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestRoleServiceCreateRejectsDuplicateName(t *testing.T) {
	svc, repo := newRoleFixture()
	repo.nameTaken = true

	_, err := svc.Create(context.Background(), CreateRoleRequest{Name: "Front Desk"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestRoleServiceDeactivateBlockedByUsers(t *testing.T) {
	svc, repo := newRoleFixture()
	repo.userCount = 3

	err := svc.Deactivate(context.Background(), "r1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.True(t, repo.roles["r1"].Active)
}

func TestRoleServiceDeactivateWithoutUsers(t *testing.T) {
	svc, repo := newRoleFixture()

	require.NoError(t, svc.Deactivate(context.Background(), "r1"))
	assert.False(t, repo.roles["r1"].Active)
}
