package access

import (
	"context"
	"testing"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc    *Service
	db     database.Database
	master *database.Tenant
	branch *database.Tenant
	leaf   *database.Tenant
	other  *database.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.InitMasterTenant(ctx, db))

	master, err := db.GetTenantByID(ctx, 1)
	require.NoError(t, err)

	mkTenant := func(parent *database.Tenant, name, slug string, hub bool) *database.Tenant {
		tn := &database.Tenant{ParentID: &parent.ID, Name: name, Slug: slug, IsActive: true, IsHub: hub}
		if hub {
			tn.MaxSubDepth = 2
		}
		require.NoError(t, db.CreateTenant(ctx, tn))
		tn.Path = parent.ChildPath(tn.ID)
		tn.Depth = parent.Depth + 1
		require.NoError(t, db.UpdateTenant(ctx, tn))
		return tn
	}

	branch := mkTenant(master, "Branch", "branch", true)
	leaf := mkTenant(branch, "Leaf", "leaf", false)
	other := mkTenant(master, "Other", "other", true)

	return &fixture{
		svc:    NewService(db, zap.NewNop()),
		db:     db,
		master: master,
		branch: branch,
		leaf:   leaf,
		other:  other,
	}
}

func (f *fixture) mkUser(t *testing.T, tenantID uint, username string, superAdmin, global bool) *database.User {
	t.Helper()
	u := &database.User{
		TenantID:           tenantID,
		Username:           username,
		Password:           "x",
		IsSuperAdmin:       superAdmin,
		IsGlobalSuperAdmin: global,
		IsActive:           true,
	}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u
}

func TestResolve_Levels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	god := f.mkUser(t, f.branch.ID, "god", false, true)
	masterAdmin := f.mkUser(t, f.master.ID, "master", true, false)
	tenantAdmin := f.mkUser(t, f.branch.ID, "branchadm", true, false)
	nobody := f.mkUser(t, f.branch.ID, "nobody", false, false)

	scope, err := f.svc.Resolve(ctx, god.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelGod, scope.Level)

	scope, err = f.svc.Resolve(ctx, masterAdmin.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelMasterHubAdmin, scope.Level)

	scope, err = f.svc.Resolve(ctx, tenantAdmin.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelTenantAdmin, scope.Level)

	_, err = f.svc.Resolve(ctx, nobody.ID)
	assert.Error(t, err)

	nobody.IsActive = false
	require.NoError(t, f.db.UpdateUser(ctx, nobody))
	_, err = f.svc.Resolve(ctx, nobody.ID)
	assert.Error(t, err)
}

func TestCanAccessTenant_SubtreeContainment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	adm := f.mkUser(t, f.branch.ID, "badm", true, false)
	scope, err := f.svc.Resolve(ctx, adm.ID)
	require.NoError(t, err)

	ok, _ := f.svc.CanAccessTenant(scope, f.branch)
	assert.True(t, ok)
	ok, _ = f.svc.CanAccessTenant(scope, f.leaf)
	assert.True(t, ok)

	ok, reason := f.svc.CanAccessTenant(scope, f.other)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
	ok, _ = f.svc.CanAccessTenant(scope, f.master)
	assert.False(t, ok)
}

func TestCanManageTenant_GodBypassesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	god := f.mkUser(t, f.leaf.ID, "god", false, true)
	scope, err := f.svc.Resolve(ctx, god.ID)
	require.NoError(t, err)

	for _, target := range []*database.Tenant{f.master, f.branch, f.leaf, f.other} {
		ok, _ := f.svc.CanManageTenant(scope, target)
		assert.True(t, ok)
	}
}

func TestCanManageTenant_MasterNeedsGod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// even the root hub's own super admin cannot mutate the root tenant
	masterAdmin := f.mkUser(t, f.master.ID, "masteradm", true, false)
	scope, err := f.svc.Resolve(ctx, masterAdmin.ID)
	require.NoError(t, err)
	require.Equal(t, LevelMasterHubAdmin, scope.Level)

	ok, reason := f.svc.CanManageTenant(scope, f.master)
	assert.False(t, ok)
	assert.Contains(t, reason, "global super admin")

	_, err = f.svc.RequireManage(ctx, scope, f.master.ID)
	assert.Error(t, err)

	// other tenants in the tree stay manageable
	ok, _ = f.svc.CanManageTenant(scope, f.branch)
	assert.True(t, ok)
}

func TestCanManageTenant_InactiveHomeTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	adm := f.mkUser(t, f.branch.ID, "badm", true, false)
	scope, err := f.svc.Resolve(ctx, adm.ID)
	require.NoError(t, err)

	scope.Tenant.IsActive = false
	ok, reason := f.svc.CanManageTenant(scope, f.leaf)
	assert.False(t, ok)
	assert.Contains(t, reason, "deactivated")
}

func TestCanCreateSubtenantUnder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	adm := f.mkUser(t, f.branch.ID, "badm", true, false)
	scope, err := f.svc.Resolve(ctx, adm.ID)
	require.NoError(t, err)

	ok, _ := f.svc.CanCreateSubtenantUnder(scope, f.branch)
	assert.True(t, ok)

	// leaf is not a hub
	ok, reason := f.svc.CanCreateSubtenantUnder(scope, f.leaf)
	assert.False(t, ok)
	assert.Contains(t, reason, "sub-tenants")

	// outside subtree
	ok, _ = f.svc.CanCreateSubtenantUnder(scope, f.other)
	assert.False(t, ok)

	// a hub with an exhausted depth budget refuses new children
	f.branch.MaxSubDepth = 0
	ok, reason = f.svc.CanCreateSubtenantUnder(scope, f.branch)
	assert.False(t, ok)
	assert.Contains(t, reason, "depth budget")
	f.branch.MaxSubDepth = 2
}

func TestRequireManage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	adm := f.mkUser(t, f.branch.ID, "badm", true, false)
	scope, err := f.svc.Resolve(ctx, adm.ID)
	require.NoError(t, err)

	got, err := f.svc.RequireManage(ctx, scope, f.leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, f.leaf.ID, got.ID)

	_, err = f.svc.RequireManage(ctx, scope, f.other.ID)
	assert.Error(t, err)

	_, err = f.svc.RequireManage(ctx, scope, 9999)
	assert.Error(t, err)
}
