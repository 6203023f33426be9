package database

import (
	"fmt"
	"time"

	"github.com/nexushub/controlplane/internal/common/cnst"
)

// Tenant represents a node in the tenant hierarchy. Path is the materialized
// path of ancestor IDs including the tenant itself, e.g. "/1/4/9/" for tenant 9
// under 4 under the root tenant 1. Depth is always len(path segments) - 1.
type Tenant struct {
	ID          uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	ParentID    *uint   `json:"parentId" gorm:"index"`
	Name        string  `json:"name" gorm:"type:varchar(100);not null"`
	Slug        string  `json:"slug" gorm:"type:varchar(120);uniqueIndex"`
	Domain      string  `json:"domain" gorm:"type:varchar(255);index"`
	Description string  `json:"description" gorm:"type:varchar(500)"`
	Path        string  `json:"path" gorm:"type:varchar(255);index;not null"`
	Depth       int     `json:"depth" gorm:"not null;default:0"`
	IsActive    bool    `json:"isActive" gorm:"not null;default:true"`
	IsHub       bool    `json:"isHub" gorm:"not null;default:false"`
	MaxSubDepth int     `json:"maxSubDepth" gorm:"not null;default:0"` // levels of nesting allowed below; the root tenant alone ignores it
	Features    JSONMap `json:"features"`
	Config      JSONMap `json:"config"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

// IsMaster reports whether this is the root tenant.
func (t *Tenant) IsMaster() bool {
	return t.ID == cnst.MasterTenantID
}

// IsDescendantOf reports whether t lives inside other's subtree (strictly below it).
func (t *Tenant) IsDescendantOf(other *Tenant) bool {
	if t.ID == other.ID {
		return false
	}
	return len(t.Path) > len(other.Path) && t.Path[:len(other.Path)] == other.Path
}

// ChildPath returns the materialized path a child with the given ID would have.
func (t *Tenant) ChildPath(childID uint) string {
	return fmt.Sprintf("%s%d/", t.Path, childID)
}

// UserRole represents the role of a user
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleNormal UserRole = "normal"
)

// User represents an account attached to a tenant. Super admin flags extend
// the base role: IsSuperAdmin grants administration over the user's own tenant
// subtree, IsGlobalSuperAdmin grants god-level access across the hierarchy.
type User struct {
	ID                 uint     `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID           uint     `json:"tenantId" gorm:"index;not null"`
	Username           string   `json:"username" gorm:"type:varchar(50);uniqueIndex"`
	Email              string   `json:"email" gorm:"type:varchar(255);index"`
	Password           string   `json:"-" gorm:"not null"`
	Role               UserRole `json:"role" gorm:"not null;default:'normal'"`
	IsSuperAdmin       bool     `json:"isSuperAdmin" gorm:"not null;default:false"`
	IsGlobalSuperAdmin bool     `json:"isGlobalSuperAdmin" gorm:"not null;default:false"`
	IsActive           bool     `json:"isActive" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuditEntry is an append-only record of a privileged mutation. Data holds a
// JSON payload describing the change.
type AuditEntry struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ActionType    string    `json:"actionType" gorm:"type:varchar(64);index;not null"`
	TargetType    string    `json:"targetType" gorm:"type:varchar(32);index;not null"`
	TargetID      uint      `json:"targetId" gorm:"index"`
	TargetLabel   string    `json:"targetLabel" gorm:"type:varchar(255)"`
	ActorID       uint      `json:"actorId" gorm:"index"`
	ActorUsername string    `json:"actorUsername" gorm:"type:varchar(50)"`
	Level         string    `json:"level" gorm:"type:varchar(16);index;not null;default:'info'"`
	Description   string    `json:"description" gorm:"type:varchar(500)"`
	Data          string    `json:"data" gorm:"type:text"`
	CreatedAt     time.Time `json:"createdAt" gorm:"index"`
}

// FederationSystemControls is the singleton row (ID=1) holding system-wide
// federation switches.
type FederationSystemControls struct {
	ID uint `json:"id" gorm:"primaryKey"`

	// FederationEnabled is the master switch. Lockdown force-disables it as a
	// side effect; lifting the lockdown does not re-enable it.
	FederationEnabled bool `json:"federationEnabled" gorm:"not null;default:true"`

	ProfilesEnabled     bool `json:"profilesEnabled" gorm:"not null;default:true"`
	MessagingEnabled    bool `json:"messagingEnabled" gorm:"not null;default:true"`
	TransactionsEnabled bool `json:"transactionsEnabled" gorm:"not null;default:true"`
	ListingsEnabled     bool `json:"listingsEnabled" gorm:"not null;default:true"`
	EventsEnabled       bool `json:"eventsEnabled" gorm:"not null;default:true"`
	GroupsEnabled       bool `json:"groupsEnabled" gorm:"not null;default:true"`

	WhitelistMode      bool `json:"whitelistMode" gorm:"not null;default:false"`
	MaxFederationLevel int  `json:"maxFederationLevel" gorm:"not null;default:4"`

	LockdownActive bool       `json:"lockdownActive" gorm:"not null;default:false"`
	LockdownReason string     `json:"lockdownReason" gorm:"type:varchar(500)"`
	LockdownBy     uint       `json:"lockdownBy"`
	LockdownAt     *time.Time `json:"lockdownAt,omitempty"`

	UpdatedBy uint      `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CapabilityEnabled returns the system-wide switch for a capability.
func (c *FederationSystemControls) CapabilityEnabled(cap cnst.Capability) bool {
	switch cap {
	case cnst.CapProfiles:
		return c.ProfilesEnabled
	case cnst.CapMessaging:
		return c.MessagingEnabled
	case cnst.CapTransactions:
		return c.TransactionsEnabled
	case cnst.CapListings:
		return c.ListingsEnabled
	case cnst.CapEvents:
		return c.EventsEnabled
	case cnst.CapGroups:
		return c.GroupsEnabled
	default:
		return false
	}
}

// SetCapability sets the system-wide switch for a capability.
func (c *FederationSystemControls) SetCapability(cap cnst.Capability, enabled bool) {
	switch cap {
	case cnst.CapProfiles:
		c.ProfilesEnabled = enabled
	case cnst.CapMessaging:
		c.MessagingEnabled = enabled
	case cnst.CapTransactions:
		c.TransactionsEnabled = enabled
	case cnst.CapListings:
		c.ListingsEnabled = enabled
	case cnst.CapEvents:
		c.EventsEnabled = enabled
	case cnst.CapGroups:
		c.GroupsEnabled = enabled
	}
}

// WhitelistEntry marks a tenant as allowed to federate while whitelist mode
// is active.
type WhitelistEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID  uint      `json:"tenantId" gorm:"uniqueIndex;not null"`
	AddedBy   uint      `json:"addedBy"`
	Reason    string    `json:"reason" gorm:"type:varchar(500)"`
	CreatedAt time.Time `json:"createdAt"`
}

// TenantFeatureOverride narrows a system-wide capability for a single tenant.
// Overrides can only disable, never re-enable, a capability the system has off.
type TenantFeatureOverride struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID   uint      `json:"tenantId" gorm:"index:idx_tenant_capability,unique;not null"`
	Capability string    `json:"capability" gorm:"type:varchar(32);index:idx_tenant_capability,unique;not null"`
	Enabled    bool      `json:"enabled" gorm:"not null;default:true"`
	UpdatedBy  uint      `json:"updatedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Partnership is a federation agreement between two tenants. Status moves
// pending -> active <-> suspended, and any state may move to terminated.
type Partnership struct {
	ID                uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	RequesterTenantID uint    `json:"requesterTenantId" gorm:"index;not null"`
	PartnerTenantID   uint    `json:"partnerTenantId" gorm:"index;not null"`
	Status            string  `json:"status" gorm:"type:varchar(16);index;not null;default:'pending'"`
	Level             int     `json:"level" gorm:"not null;default:1"`
	Permissions       JSONMap `json:"permissions"`
	Message           string  `json:"message" gorm:"type:varchar(500)"`

	InitiatedBy     uint   `json:"initiatedBy"`
	ApprovedBy      *uint  `json:"approvedBy,omitempty"`
	SuspendedReason string `json:"suspendedReason" gorm:"type:varchar(500)"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ActivatedAt  *time.Time `json:"activatedAt,omitempty"`
	SuspendedAt  *time.Time `json:"suspendedAt,omitempty"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
}

// Involves reports whether the given tenant is one of the two parties.
func (p *Partnership) Involves(tenantID uint) bool {
	return p.RequesterTenantID == tenantID || p.PartnerTenantID == tenantID
}

// OtherParty returns the counterpart tenant ID, or 0 if tenantID is not a party.
func (p *Partnership) OtherParty(tenantID uint) uint {
	switch tenantID {
	case p.RequesterTenantID:
		return p.PartnerTenantID
	case p.PartnerTenantID:
		return p.RequesterTenantID
	default:
		return 0
	}
}
