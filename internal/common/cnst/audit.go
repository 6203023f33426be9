package cnst

// Audit action types recorded by the control plane. Every privileged mutation
// maps to exactly one of these.
const (
	ActionTenantCreated      = "tenant_created"
	ActionTenantUpdated      = "tenant_updated"
	ActionTenantMoved        = "tenant_moved"
	ActionTenantDeleted      = "tenant_deleted"
	ActionHubToggled         = "hub_toggled"
	ActionUserCreated        = "user_created"
	ActionUserMoved          = "user_moved"
	ActionSuperAdminGranted  = "super_admin_granted"
	ActionSuperAdminRevoked  = "super_admin_revoked"
	ActionGlobalAdminGranted = "global_super_admin_granted"
	ActionGlobalAdminRevoked = "global_super_admin_revoked"
	ActionBulkUsersMoved     = "bulk_users_moved"
	ActionBulkTenantsUpdated = "bulk_tenants_updated"

	ActionSystemControlsUpdated = "system_controls_updated"
	ActionLockdownTriggered     = "emergency_lockdown_triggered"
	ActionLockdownLifted        = "emergency_lockdown_lifted"
	ActionTenantWhitelisted     = "tenant_whitelisted"
	ActionTenantUnwhitelisted   = "tenant_removed_from_whitelist"
	ActionTenantFeatureChanged  = "tenant_feature_changed"

	ActionPartnershipCreated     = "partnership_created"
	ActionPartnershipActivated   = "partnership_activated"
	ActionPartnershipSuspended   = "partnership_suspended"
	ActionPartnershipReactivated = "partnership_reactivated"
	ActionPartnershipTerminated  = "partnership_terminated"
	ActionPartnershipGrants      = "partnership_grants_updated"
)

// Audit target types.
const (
	TargetTenant      = "tenant"
	TargetUser        = "user"
	TargetBulk        = "bulk"
	TargetFederation  = "federation"
	TargetPartnership = "partnership"
)

// Audit severity levels, lowest to highest.
const (
	LevelDebug    = "debug"
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)
