package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

type mockPermissionRepo struct {
	catalog   []models.Permission
	roleCodes []string
	allow     []string
	deny      []string
	overrides []models.UserPermission
	created   []models.UserPermission
	updated   map[string]string
	nextID    int
}

func (m *mockPermissionRepo) List(ctx context.Context, filter models.PermissionFilter) ([]models.Permission, int, error) {
	return m.catalog, len(m.catalog), nil
}

func (m *mockPermissionRepo) ListAll(ctx context.Context) ([]models.Permission, error) {
	return m.catalog, nil
}

func (m *mockPermissionRepo) FindByID(ctx context.Context, id string) (*models.Permission, error) {
	for _, p := range m.catalog {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPermissionRepo) ListRoleCodes(ctx context.Context, roleID string) ([]string, error) {
	return m.roleCodes, nil
}

func (m *mockPermissionRepo) ListUserOverrideCodes(ctx context.Context, userID string) ([]string, []string, error) {
	return m.allow, m.deny, nil
}

func (m *mockPermissionRepo) ListUserOverridesAll(ctx context.Context, userID string) ([]models.UserPermission, error) {
	return m.overrides, nil
}

func (m *mockPermissionRepo) CreateUserOverride(ctx context.Context, override *models.UserPermission) error {
	m.nextID++
	override.ID = "o-new-" + strconv.Itoa(m.nextID)
	m.overrides = append(m.overrides, *override)
	m.created = append(m.created, *override)
	return nil
}

func (m *mockPermissionRepo) UpdateUserOverride(ctx context.Context, overrideID, effect string, active bool) error {
	if m.updated == nil {
		m.updated = make(map[string]string)
	}
	m.updated[overrideID] = effect + "/" + strconv.FormatBool(active)
	for i := range m.overrides {
		if m.overrides[i].ID == overrideID {
			m.overrides[i].Effect = effect
			m.overrides[i].Active = active
		}
	}
	return nil
}

func TestPermissionServiceEffectiveCodes(t *testing.T) {
	repo := &mockPermissionRepo{
		roleCodes: []string{"patients.view", "patients.manage", "visits.view"},
		allow:     []string{"exports.run"},
		deny:      []string{"patients.manage"},
	}
	svc := NewPermissionService(repo, nil, validator.New(), zap.NewNop())

	effective, err := svc.EffectiveCodes(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.True(t, effective["patients.view"])
	assert.True(t, effective["visits.view"])
	assert.True(t, effective["exports.run"])
	// A deny override beats the role grant.
	assert.False(t, effective["patients.manage"])
}

func TestPermissionServiceSetUserOverridesReconciles(t *testing.T) {
	repo := &mockPermissionRepo{
		catalog: []models.Permission{
			{ID: "p1", Module: "patients", Action: "view"},
			{ID: "p2", Module: "patients", Action: "manage"},
			{ID: "p3", Module: "exports", Action: "run"},
		},
		overrides: []models.UserPermission{
			{ID: "o1", UserID: "u1", PermissionID: "p1", Effect: models.PermissionEffectAllow, Active: true},
			{ID: "o2", UserID: "u1", PermissionID: "p2", Effect: models.PermissionEffectAllow, Active: true},
		},
	}
	svc := NewPermissionService(repo, nil, validator.New(), zap.NewNop())

	// Keep p1, flip p2 to deny, add p3. Nothing else to retire.
	err := svc.SetUserOverrides(context.Background(), "u1", []PermissionOverrideRequest{
		{PermissionID: "p1", Effect: models.PermissionEffectAllow},
		{PermissionID: "p2", Effect: models.PermissionEffectDeny},
		{PermissionID: "p3", Effect: models.PermissionEffectAllow},
	})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "p3", repo.created[0].PermissionID)
	assert.Equal(t, "deny/true", repo.updated["o2"])
	_, touchedKept := repo.updated["o1"]
	assert.False(t, touchedKept)
}

func TestPermissionServiceSetUserOverridesRetiresAbsent(t *testing.T) {
	repo := &mockPermissionRepo{
		catalog: []models.Permission{
			{ID: "p1", Module: "patients", Action: "view"},
		},
		overrides: []models.UserPermission{
			{ID: "o1", UserID: "u1", PermissionID: "p1", Effect: models.PermissionEffectAllow, Active: true},
			{ID: "o2", UserID: "u1", PermissionID: "p2", Effect: models.PermissionEffectDeny, Active: true},
			{ID: "o3", UserID: "u1", PermissionID: "p3", Effect: models.PermissionEffectAllow, Active: false},
		},
	}
	svc := NewPermissionService(repo, nil, validator.New(), zap.NewNop())

	err := svc.SetUserOverrides(context.Background(), "u1", []PermissionOverrideRequest{
		{PermissionID: "p1", Effect: models.PermissionEffectAllow},
	})
	require.NoError(t, err)

	// The active absent row is retired keeping its effect; the already
	// inactive one is left alone.
	assert.Equal(t, "deny/false", repo.updated["o2"])
	_, touched := repo.updated["o3"]
	assert.False(t, touched)
}

func TestPermissionServiceSetUserOverridesRejectsBadPayload(t *testing.T) {
	repo := &mockPermissionRepo{
		catalog: []models.Permission{{ID: "p1", Module: "patients", Action: "view"}},
	}
	svc := NewPermissionService(repo, nil, validator.New(), zap.NewNop())

	for _, tc := range []struct {
		name string
		reqs []PermissionOverrideRequest
	}{
		{"bad effect", []PermissionOverrideRequest{{PermissionID: "p1", Effect: "maybe"}}},
		{"duplicate permission", []PermissionOverrideRequest{
			{PermissionID: "p1", Effect: models.PermissionEffectAllow},
			{PermissionID: "p1", Effect: models.PermissionEffectDeny},
		}},
		{"unknown permission", []PermissionOverrideRequest{{PermissionID: "missing", Effect: models.PermissionEffectAllow}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.SetUserOverrides(context.Background(), "u1", tc.reqs)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestPermissionServiceCatalogGroupsByModule(t *testing.T) {
	repo := &mockPermissionRepo{
		catalog: []models.Permission{
			{ID: "p1", Module: "patients", Action: "view"},
			{ID: "p2", Module: "appointments", Action: "view"},
			{ID: "p3", Module: "patients", Action: "manage"},
		},
	}
	svc := NewPermissionService(repo, nil, validator.New(), zap.NewNop())

	modules, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, "appointments", modules[0].Module)
	assert.Equal(t, "patients", modules[1].Module)
	assert.Len(t, modules[1].Permissions, 2)
}
