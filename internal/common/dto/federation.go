package dto

// UpdateControlsRequest applies a partial update to the federation system
// controls. Absent fields are left untouched.
type UpdateControlsRequest struct {
	FederationEnabled  *bool           `json:"federationEnabled,omitempty"`
	Capabilities       map[string]bool `json:"capabilities,omitempty"`
	WhitelistMode      *bool           `json:"whitelistMode,omitempty"`
	MaxFederationLevel *int            `json:"maxFederationLevel,omitempty"`
}

// LockdownRequest triggers an emergency federation lockdown.
type LockdownRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// WhitelistAddRequest puts a tenant on the federation whitelist.
type WhitelistAddRequest struct {
	TenantID uint   `json:"tenantId" binding:"required"`
	Reason   string `json:"reason,omitempty"`
}

// TenantFeatureRequest sets a per-tenant capability override.
type TenantFeatureRequest struct {
	Capability string `json:"capability" binding:"required"`
	Enabled    *bool  `json:"enabled" binding:"required"`
}

// CreatePartnershipRequest opens a pending partnership between two tenants.
type CreatePartnershipRequest struct {
	RequesterTenantID uint           `json:"requesterTenantId" binding:"required"`
	PartnerTenantID   uint           `json:"partnerTenantId" binding:"required"`
	Level             int            `json:"level" binding:"required,min=1,max=4"`
	Message           string         `json:"message,omitempty"`
	Permissions       map[string]any `json:"permissions,omitempty"`
}

// SuspendPartnershipRequest pauses an active partnership.
type SuspendPartnershipRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PartnershipGrantsRequest replaces the permission grants of a partnership.
type PartnershipGrantsRequest struct {
	Permissions map[string]any `json:"permissions" binding:"required"`
}
