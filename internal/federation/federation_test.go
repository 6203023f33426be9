package federation

import (
	"context"
	"testing"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type fixture struct {
	svc    *Service
	db     database.Database
	access *access.Service
	god    *access.Scope
	master *database.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.InitMasterTenant(ctx, db))

	logger := zap.NewNop()
	accessSvc := access.NewService(db, logger)
	auditSvc := audit.NewService(db, logger, nil)
	svc := NewService(db, accessSvc, auditSvc, newMemoryCache(0), logger, nil)

	godUser := &database.User{TenantID: 1, Username: "god", Password: "x", IsGlobalSuperAdmin: true, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, godUser))
	god, err := accessSvc.Resolve(ctx, godUser.ID)
	require.NoError(t, err)

	master, err := db.GetTenantByID(ctx, 1)
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, access: accessSvc, god: god, master: master}
}

// mkTenant creates an active hub tenant directly under the master hub.
func (f *fixture) mkTenant(t *testing.T, name string) *database.Tenant {
	t.Helper()
	ctx := context.Background()
	parentID := uint(cnst.MasterTenantID)
	tn := &database.Tenant{ParentID: &parentID, Name: name, Slug: name, IsActive: true, IsHub: true}
	require.NoError(t, f.db.CreateTenant(ctx, tn))
	tn.Path = f.master.ChildPath(tn.ID)
	tn.Depth = 1
	require.NoError(t, f.db.UpdateTenant(ctx, tn))
	return tn
}

func (f *fixture) scopeFor(t *testing.T, tenantID uint, username string) *access.Scope {
	t.Helper()
	ctx := context.Background()
	u := &database.User{TenantID: tenantID, Username: username, Password: "x", IsSuperAdmin: true, IsActive: true}
	require.NoError(t, f.db.CreateUser(ctx, u))
	scope, err := f.access.Resolve(ctx, u.ID)
	require.NoError(t, err)
	return scope
}

func lastAudit(t *testing.T, f *fixture, action string) *database.AuditEntry {
	t.Helper()
	entries, _, err := f.db.ListAuditEntries(context.Background(), &database.AuditFilter{ActionType: action, Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, entries, "expected audit entry for %s", action)
	return entries[0]
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *errorx.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, want, apiErr.Code)
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestEffectiveCapability(t *testing.T) {
	controls := &database.FederationSystemControls{
		FederationEnabled: true,
		ProfilesEnabled:   true,
		MessagingEnabled:  false,
	}

	assert.True(t, EffectiveCapability(controls, nil, cnst.CapProfiles))
	assert.False(t, EffectiveCapability(controls, nil, cnst.CapMessaging))

	disabled := &database.TenantFeatureOverride{Capability: string(cnst.CapProfiles), Enabled: false}
	assert.False(t, EffectiveCapability(controls, disabled, cnst.CapProfiles))

	// an enabled override cannot resurrect a system-wide switch-off
	enabled := &database.TenantFeatureOverride{Capability: string(cnst.CapMessaging), Enabled: true}
	assert.False(t, EffectiveCapability(controls, enabled, cnst.CapMessaging))

	controls.LockdownActive = true
	assert.False(t, EffectiveCapability(controls, nil, cnst.CapProfiles))

	controls.LockdownActive = false
	controls.FederationEnabled = false
	assert.False(t, EffectiveCapability(controls, nil, cnst.CapProfiles))
}

func TestUpdateControls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	controls, err := f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{
		Capabilities:       map[cnst.Capability]bool{cnst.CapTransactions: false},
		WhitelistMode:      boolPtr(true),
		MaxFederationLevel: intPtr(2),
	})
	require.NoError(t, err)
	assert.False(t, controls.TransactionsEnabled)
	assert.True(t, controls.WhitelistMode)
	assert.Equal(t, 2, controls.MaxFederationLevel)

	entry := lastAudit(t, f, cnst.ActionSystemControlsUpdated)
	assert.Equal(t, cnst.LevelWarning, entry.Level)
	assert.False(t, gjson.Get(entry.Data, "changes.transactions_enabled").Bool())
	assert.Equal(t, int64(2), gjson.Get(entry.Data, "changes.max_federation_level").Int())

	// reload hits the database again after invalidation
	got, err := f.svc.GetControls(ctx, f.god)
	require.NoError(t, err)
	assert.False(t, got.TransactionsEnabled)
}

func TestUpdateControls_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{
		Capabilities: map[cnst.Capability]bool{"teleport": true},
	})
	assertCode(t, err, errorx.ErrInvalidInput.Code)

	_, err = f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{MaxFederationLevel: intPtr(9)})
	assertCode(t, err, errorx.ErrInvalidInput.Code)
}

func TestControls_ScopeDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.mkTenant(t, "branch")
	admin := f.scopeFor(t, branch.ID, "branch-admin")

	_, err := f.svc.GetControls(ctx, admin)
	assertCode(t, err, errorx.ErrScopeDenied.Code)

	_, err = f.svc.TriggerLockdown(ctx, admin, "because")
	assertCode(t, err, errorx.ErrScopeDenied.Code)

	_, err = f.svc.AddToWhitelist(ctx, admin, branch.ID, "self-serve")
	assertCode(t, err, errorx.ErrScopeDenied.Code)
}

func TestLockdownLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.mkTenant(t, "branch")

	_, err := f.svc.TriggerLockdown(ctx, f.god, "  ")
	assertCode(t, err, errorx.ErrInvalidInput.Code)

	controls, err := f.svc.TriggerLockdown(ctx, f.god, "incident 4711")
	require.NoError(t, err)
	assert.True(t, controls.LockdownActive)
	assert.Equal(t, "incident 4711", controls.LockdownReason)
	require.NotNil(t, controls.LockdownAt)

	entry := lastAudit(t, f, cnst.ActionLockdownTriggered)
	assert.Equal(t, cnst.LevelCritical, entry.Level)

	// lockdown freezes federation for everyone
	ok, reason, err := f.svc.CanFederate(ctx, branch)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "lockdown")

	_, err = f.svc.TriggerLockdown(ctx, f.god, "again")
	assertCode(t, err, errorx.ErrResourceExists.Code)

	// the master switch was force-disabled and stays pinned until the
	// lockdown is lifted
	assert.False(t, controls.FederationEnabled)
	_, err = f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{FederationEnabled: boolPtr(true)})
	assertCode(t, err, errorx.ErrInvariantViolation.Code)

	controls, err = f.svc.LiftLockdown(ctx, f.god)
	require.NoError(t, err)
	assert.False(t, controls.LockdownActive)
	assert.Empty(t, controls.LockdownReason)
	assert.Nil(t, controls.LockdownAt)

	lifted := lastAudit(t, f, cnst.ActionLockdownLifted)
	assert.Equal(t, "incident 4711", gjson.Get(lifted.Data, "previous_reason").String())

	_, err = f.svc.LiftLockdown(ctx, f.god)
	assertCode(t, err, errorx.ErrResourceExists.Code)

	// lifting the lockdown does not re-enable the master switch
	assert.False(t, controls.FederationEnabled)
	ok, reason, err = f.svc.CanFederate(ctx, branch)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "disabled")

	_, err = f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{FederationEnabled: boolPtr(true)})
	require.NoError(t, err)
	ok, _, err = f.svc.CanFederate(ctx, branch)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWhitelistMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.mkTenant(t, "branch")

	_, err := f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{WhitelistMode: boolPtr(true)})
	require.NoError(t, err)

	ok, reason, err := f.svc.CanFederate(ctx, branch)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "whitelist")

	// the master hub never needs whitelisting
	ok, _, err = f.svc.CanFederate(ctx, f.master)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.svc.AddToWhitelist(ctx, f.god, f.master.ID, "redundant")
	assertCode(t, err, errorx.ErrInvalidInput.Code)

	entry, err := f.svc.AddToWhitelist(ctx, f.god, branch.ID, "trusted partner")
	require.NoError(t, err)
	assert.Equal(t, branch.ID, entry.TenantID)

	_, err = f.svc.AddToWhitelist(ctx, f.god, branch.ID, "twice")
	assertCode(t, err, errorx.ErrResourceExists.Code)

	ok, _, err = f.svc.CanFederate(ctx, branch)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.RemoveFromWhitelist(ctx, f.god, branch.ID))
	assert.Error(t, f.svc.RemoveFromWhitelist(ctx, f.god, branch.ID))

	removed := lastAudit(t, f, cnst.ActionTenantUnwhitelisted)
	assert.Equal(t, branch.ID, removed.TargetID)
}

func TestSetTenantFeature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.mkTenant(t, "branch")

	override, err := f.svc.SetTenantFeature(ctx, f.god, branch.ID, cnst.CapMessaging, false)
	require.NoError(t, err)
	assert.False(t, override.Enabled)

	caps, err := f.svc.TenantCapabilities(ctx, branch.ID)
	require.NoError(t, err)
	assert.False(t, caps[cnst.CapMessaging])
	assert.True(t, caps[cnst.CapProfiles])

	// no-op writes no second audit entry
	_, err = f.svc.SetTenantFeature(ctx, f.god, branch.ID, cnst.CapMessaging, false)
	require.NoError(t, err)
	_, total, err := f.db.ListAuditEntries(ctx, &database.AuditFilter{ActionType: cnst.ActionTenantFeatureChanged})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, err = f.svc.SetTenantFeature(ctx, f.god, branch.ID, "teleport", true)
	assertCode(t, err, errorx.ErrInvalidInput.Code)

	_, err = f.svc.SetTenantFeature(ctx, f.god, 999, cnst.CapMessaging, false)
	assertCode(t, err, errorx.ErrResourceNotFound.Code)
}

func TestCreatePartnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.mkTenant(t, "alpha")
	beta := f.mkTenant(t, "beta")

	_, err := f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: alpha.ID, Level: 1,
	})
	assertCode(t, err, errorx.ErrInvalidInput.Code)

	p, err := f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID,
		PartnerTenantID:   beta.ID,
		Level:             cnst.LevelEconomic,
		Message:           "let's trade",
	})
	require.NoError(t, err)
	assert.Equal(t, cnst.PartnershipPending, p.Status)
	assert.Equal(t, true, p.Permissions["transactions.initiate"])
	_, integrated := p.Permissions["events.join"]
	assert.False(t, integrated, "economic level must not include integrated grants")

	// only one live partnership per pair, regardless of direction
	_, err = f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: beta.ID, PartnerTenantID: alpha.ID, Level: 1,
	})
	assertCode(t, err, errorx.ErrResourceExists.Code)

	entry := lastAudit(t, f, cnst.ActionPartnershipCreated)
	assert.Equal(t, "Economic", gjson.Get(entry.Data, "level_name").String())
}

func TestCreatePartnership_LevelCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.mkTenant(t, "alpha")
	beta := f.mkTenant(t, "beta")

	_, err := f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{MaxFederationLevel: intPtr(cnst.LevelSocial)})
	require.NoError(t, err)

	_, err = f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: beta.ID, Level: cnst.LevelIntegrated,
	})
	assertCode(t, err, errorx.ErrInvariantViolation.Code)

	_, err = f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: beta.ID, Level: cnst.LevelSocial,
	})
	assert.NoError(t, err)
}

func TestPartnershipLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.mkTenant(t, "alpha")
	beta := f.mkTenant(t, "beta")
	alphaAdmin := f.scopeFor(t, alpha.ID, "alpha-admin")
	betaAdmin := f.scopeFor(t, beta.ID, "beta-admin")

	p, err := f.svc.CreatePartnership(ctx, alphaAdmin, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: beta.ID, Level: cnst.LevelSocial,
	})
	require.NoError(t, err)

	// the requesting side cannot approve its own request
	_, err = f.svc.ActivatePartnership(ctx, alphaAdmin, p.ID)
	assertCode(t, err, errorx.ErrScopeDenied.Code)

	p, err = f.svc.ActivatePartnership(ctx, betaAdmin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cnst.PartnershipActive, p.Status)
	require.NotNil(t, p.ApprovedBy)
	assert.Equal(t, betaAdmin.User.ID, *p.ApprovedBy)
	require.NotNil(t, p.ActivatedAt)

	// double activation is an invalid transition
	_, err = f.svc.ActivatePartnership(ctx, betaAdmin, p.ID)
	assertCode(t, err, errorx.ErrInvalidTransition.Code)

	p, err = f.svc.SuspendPartnership(ctx, alphaAdmin, p.ID, "billing dispute")
	require.NoError(t, err)
	assert.Equal(t, cnst.PartnershipSuspended, p.Status)
	assert.Equal(t, "billing dispute", p.SuspendedReason)

	p, err = f.svc.ReactivatePartnership(ctx, betaAdmin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cnst.PartnershipActive, p.Status)
	assert.Empty(t, p.SuspendedReason)

	p, err = f.svc.TerminatePartnership(ctx, alphaAdmin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cnst.PartnershipTerminated, p.Status)
	require.NotNil(t, p.TerminatedAt)

	// terminated is absorbing
	_, err = f.svc.ReactivatePartnership(ctx, betaAdmin, p.ID)
	assertCode(t, err, errorx.ErrInvalidTransition.Code)
	_, err = f.svc.TerminatePartnership(ctx, betaAdmin, p.ID)
	assertCode(t, err, errorx.ErrInvalidTransition.Code)

	// a fresh partnership between the same pair is allowed now
	_, err = f.svc.CreatePartnership(ctx, betaAdmin, CreatePartnershipInput{
		RequesterTenantID: beta.ID, PartnerTenantID: alpha.ID, Level: 1,
	})
	assert.NoError(t, err)
}

func TestPartnership_OutsiderDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.mkTenant(t, "alpha")
	beta := f.mkTenant(t, "beta")
	gamma := f.mkTenant(t, "gamma")
	outsider := f.scopeFor(t, gamma.ID, "gamma-admin")

	p, err := f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: beta.ID, Level: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.GetPartnership(ctx, outsider, p.ID)
	assertCode(t, err, errorx.ErrScopeDenied.Code)
	_, err = f.svc.TerminatePartnership(ctx, outsider, p.ID)
	assertCode(t, err, errorx.ErrScopeDenied.Code)
	_, err = f.svc.ListPartnerships(ctx, outsider, alpha.ID)
	assertCode(t, err, errorx.ErrScopeDenied.Code)
}

func TestUpdatePartnershipGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.mkTenant(t, "alpha")
	beta := f.mkTenant(t, "beta")

	p, err := f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: beta.ID, Level: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdatePartnershipGrants(ctx, f.god, p.ID, nil)
	assertCode(t, err, errorx.ErrInvalidInput.Code)

	p, err = f.svc.UpdatePartnershipGrants(ctx, f.god, p.ID, database.JSONMap{"profiles.view": false})
	require.NoError(t, err)
	assert.Equal(t, false, p.Permissions["profiles.view"])

	entry := lastAudit(t, f, cnst.ActionPartnershipGrants)
	assert.True(t, gjson.Get(entry.Data, "previous.profiles\\.view").Bool())

	_, err = f.svc.TerminatePartnership(ctx, f.god, p.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdatePartnershipGrants(ctx, f.god, p.ID, database.JSONMap{"profiles.view": true})
	assertCode(t, err, errorx.ErrInvariantViolation.Code)
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.mkTenant(t, "alpha")
	beta := f.mkTenant(t, "beta")
	gamma := f.mkTenant(t, "gamma")

	p1, err := f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: beta.ID, Level: 1,
	})
	require.NoError(t, err)
	_, err = f.svc.ActivatePartnership(ctx, f.god, p1.ID)
	require.NoError(t, err)

	p2, err := f.svc.CreatePartnership(ctx, f.god, CreatePartnershipInput{
		RequesterTenantID: alpha.ID, PartnerTenantID: gamma.ID, Level: 1,
	})
	require.NoError(t, err)
	_, err = f.svc.ActivatePartnership(ctx, f.god, p2.ID)
	require.NoError(t, err)

	stats, err := f.svc.GetStats(ctx, f.god)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ByStatus[cnst.PartnershipActive])
	assert.Equal(t, int64(2), stats.EffectiveActive)

	// whitelist mode gates effectiveness without touching the rows
	_, err = f.svc.UpdateControls(ctx, f.god, UpdateControlsInput{WhitelistMode: boolPtr(true)})
	require.NoError(t, err)
	_, err = f.svc.AddToWhitelist(ctx, f.god, alpha.ID, "ok")
	require.NoError(t, err)
	_, err = f.svc.AddToWhitelist(ctx, f.god, beta.ID, "ok")
	require.NoError(t, err)

	stats, err = f.svc.GetStats(ctx, f.god)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ByStatus[cnst.PartnershipActive])
	assert.Equal(t, int64(1), stats.EffectiveActive, "gamma is not whitelisted")

	// lockdown drops effective federation to zero
	_, err = f.svc.TriggerLockdown(ctx, f.god, "drill")
	require.NoError(t, err)
	stats, err = f.svc.GetStats(ctx, f.god)
	require.NoError(t, err)
	assert.True(t, stats.LockdownActive)
	assert.Equal(t, int64(2), stats.ByStatus[cnst.PartnershipActive])
	assert.Equal(t, int64(0), stats.EffectiveActive)
}
