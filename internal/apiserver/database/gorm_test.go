package database

import (
	"context"
	"testing"
	"time"

	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) Database {
	t.Helper()
	cfg := &config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"}
	db, err := NewDatabase(cfg)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedMaster(t *testing.T, db Database) *Tenant {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, InitMasterTenant(ctx, db))
	master, err := db.GetTenantByID(ctx, cnst.MasterTenantID)
	require.NoError(t, err)
	return master
}

func TestGormDB_TenantsSubtree(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	master := seedMaster(t, db)

	child := &Tenant{ParentID: &master.ID, Name: "Child", Slug: "child", IsActive: true, IsHub: true}
	assert.NoError(t, db.CreateTenant(ctx, child))
	child.Path = master.ChildPath(child.ID)
	child.Depth = 1
	assert.NoError(t, db.UpdateTenant(ctx, child))

	grand := &Tenant{ParentID: &child.ID, Name: "Grand", Slug: "grand", IsActive: true}
	assert.NoError(t, db.CreateTenant(ctx, grand))
	grand.Path = child.ChildPath(grand.ID)
	grand.Depth = 2
	assert.NoError(t, db.UpdateTenant(ctx, grand))

	sub, err := db.ListSubtree(ctx, child.Path)
	assert.NoError(t, err)
	assert.Len(t, sub, 2)

	children, err := db.ListChildTenants(ctx, master.ID)
	assert.NoError(t, err)
	assert.Len(t, children, 1)

	count, err := db.CountActiveChildren(ctx, child.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	exists, err := db.SlugExists(ctx, "grand")
	assert.NoError(t, err)
	assert.True(t, exists)

	child.Domain = "child.example.com"
	assert.NoError(t, db.UpdateTenant(ctx, child))
	taken, err := db.DomainExists(ctx, "child.example.com", 0)
	assert.NoError(t, err)
	assert.True(t, taken)
	taken, err = db.DomainExists(ctx, "child.example.com", child.ID)
	assert.NoError(t, err)
	assert.False(t, taken)

	assert.True(t, grand.IsDescendantOf(master))
	assert.True(t, grand.IsDescendantOf(child))
	assert.False(t, child.IsDescendantOf(grand))
}

func TestGormDB_UsersAndSuperAdminRevoke(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMaster(t, db)

	u1 := &User{TenantID: 1, Username: "alice", Password: "x", Role: RoleAdmin, IsSuperAdmin: true, IsActive: true}
	u2 := &User{TenantID: 1, Username: "bob", Password: "x", Role: RoleNormal, IsSuperAdmin: true, IsActive: true}
	u3 := &User{TenantID: 2, Username: "carol", Password: "x", Role: RoleNormal, IsSuperAdmin: true, IsActive: true}
	assert.NoError(t, db.CreateUser(ctx, u1))
	assert.NoError(t, db.CreateUser(ctx, u2))
	assert.NoError(t, db.CreateUser(ctx, u3))

	revoked, err := db.RevokeTenantSuperAdmins(ctx, []uint{1})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	got, err := db.GetUserByUsername(ctx, "carol")
	assert.NoError(t, err)
	assert.True(t, got.IsSuperAdmin)

	users, err := db.ListUsersByTenant(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, users, 2)
	for _, u := range users {
		assert.False(t, u.IsSuperAdmin)
	}
}

func TestGormDB_AuditFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	entries := []*AuditEntry{
		{ActionType: cnst.ActionTenantCreated, TargetType: cnst.TargetTenant, TargetID: 2, ActorID: 1, ActorUsername: "alice", Level: cnst.LevelInfo, Data: `{"name":"Child"}`, CreatedAt: base},
		{ActionType: cnst.ActionTenantMoved, TargetType: cnst.TargetTenant, TargetID: 2, ActorID: 1, ActorUsername: "alice", Level: cnst.LevelWarning, Data: `{"from":1,"to":3}`, CreatedAt: base.Add(time.Minute)},
		{ActionType: cnst.ActionLockdownTriggered, TargetType: cnst.TargetFederation, TargetID: 1, ActorID: 2, ActorUsername: "bob", Level: cnst.LevelCritical, Description: "lockdown: incident", Data: `{"reason":"incident"}`, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		assert.NoError(t, db.CreateAuditEntry(ctx, e))
	}

	got, total, err := db.ListAuditEntries(ctx, &AuditFilter{TargetType: cnst.TargetTenant})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, got, 2)
	// newest first
	assert.Equal(t, cnst.ActionTenantMoved, got[0].ActionType)

	got, total, err = db.ListAuditEntries(ctx, &AuditFilter{Search: "incident"})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, cnst.ActionLockdownTriggered, got[0].ActionType)

	since := base.Add(30 * time.Second)
	got, _, err = db.ListAuditEntries(ctx, &AuditFilter{Since: &since, Limit: 1})
	assert.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGormDB_SystemControlsSingleton(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	controls, err := db.GetSystemControls(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), controls.ID)
	assert.True(t, controls.MessagingEnabled)
	assert.Equal(t, cnst.MaxFederationLevel, controls.MaxFederationLevel)

	controls.MessagingEnabled = false
	controls.WhitelistMode = true
	assert.NoError(t, db.SaveSystemControls(ctx, controls))

	again, err := db.GetSystemControls(ctx)
	assert.NoError(t, err)
	assert.False(t, again.MessagingEnabled)
	assert.True(t, again.WhitelistMode)
	assert.False(t, again.CapabilityEnabled(cnst.CapMessaging))
	assert.True(t, again.CapabilityEnabled(cnst.CapProfiles))
}

func TestGormDB_WhitelistAndOverrides(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assert.NoError(t, db.CreateWhitelistEntry(ctx, &WhitelistEntry{TenantID: 2, AddedBy: 1, Reason: "trusted"}))
	entry, err := db.GetWhitelistEntry(ctx, 2)
	assert.NoError(t, err)
	assert.Equal(t, "trusted", entry.Reason)

	list, err := db.ListWhitelist(ctx)
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, db.DeleteWhitelistEntry(ctx, 2))
	entry, err = db.GetWhitelistEntry(ctx, 2)
	assert.NoError(t, err)
	assert.Nil(t, entry)

	ov := &TenantFeatureOverride{TenantID: 2, Capability: string(cnst.CapMessaging), Enabled: false, UpdatedBy: 1}
	assert.NoError(t, db.SaveTenantOverride(ctx, ov))
	got, err := db.GetTenantOverride(ctx, 2, string(cnst.CapMessaging))
	assert.NoError(t, err)
	assert.False(t, got.Enabled)

	got.Enabled = true
	assert.NoError(t, db.SaveTenantOverride(ctx, got))
	all, err := db.ListTenantOverrides(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, all, 1)
	assert.True(t, all[0].Enabled)
}

func TestGormDB_Partnerships(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &Partnership{RequesterTenantID: 2, PartnerTenantID: 3, Status: cnst.PartnershipPending, Level: cnst.LevelDiscovery, InitiatedBy: 1}
	assert.NoError(t, db.CreatePartnership(ctx, p))

	found, err := db.FindPartnershipBetween(ctx, 3, 2)
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, p.ID, found.ID)

	found.Status = cnst.PartnershipTerminated
	assert.NoError(t, db.UpdatePartnership(ctx, found))

	none, err := db.FindPartnershipBetween(ctx, 2, 3)
	assert.NoError(t, err)
	assert.Nil(t, none)

	p2 := &Partnership{RequesterTenantID: 2, PartnerTenantID: 4, Status: cnst.PartnershipActive, Level: cnst.LevelSocial, InitiatedBy: 1}
	assert.NoError(t, db.CreatePartnership(ctx, p2))

	byTenant, err := db.ListPartnershipsByTenant(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, byTenant, 2)

	active, err := db.ListPartnershipsByStatus(ctx, cnst.PartnershipActive)
	assert.NoError(t, err)
	assert.Len(t, active, 1)

	counts, err := db.CountPartnershipsByStatus(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), counts[cnst.PartnershipActive])
	assert.Equal(t, int64(1), counts[cnst.PartnershipTerminated])
}

func TestGormDB_Transaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// rollback on error
	err := db.Transaction(ctx, func(txCtx context.Context) error {
		if err := db.CreateTenant(txCtx, &Tenant{Name: "tmp", Slug: "tmp", Path: "/9/"}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)
	exists, err := db.SlugExists(ctx, "tmp")
	assert.NoError(t, err)
	assert.False(t, exists)

	// commit
	err = db.Transaction(ctx, func(txCtx context.Context) error {
		return db.CreateTenant(txCtx, &Tenant{Name: "kept", Slug: "kept", Path: "/10/"})
	})
	assert.NoError(t, err)
	exists, err = db.SlugExists(ctx, "kept")
	assert.NoError(t, err)
	assert.True(t, exists)

	// nested call reuses outer tx
	err = db.Transaction(ctx, func(outer context.Context) error {
		return db.Transaction(outer, func(inner context.Context) error { return nil })
	})
	assert.NoError(t, err)
}
