package database

import (
	"context"
	"time"
)

// AuditFilter narrows audit log queries. Zero values mean "no constraint".
type AuditFilter struct {
	ActionType string
	TargetType string
	TargetID   uint
	ActorID    uint
	Level      string
	Search     string // matched against actor username and payload text
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// Database defines the methods for database operations.
type Database interface {
	// Close closes the database connection.
	Close() error

	// Transaction runs fn inside a transaction. The transaction is placed on
	// the context passed to fn so nested calls reuse it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Tenants
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenantByID(ctx context.Context, id uint) (*Tenant, error)
	// GetTenantByIDForUpdate loads a tenant with a row lock where the dialect
	// supports one.
	GetTenantByIDForUpdate(ctx context.Context, id uint) (*Tenant, error)
	UpdateTenant(ctx context.Context, tenant *Tenant) error
	// DeleteTenant removes the row permanently. Soft deletion is done through
	// UpdateTenant with DeletedAt set.
	DeleteTenant(ctx context.Context, id uint) error
	ListChildTenants(ctx context.Context, parentID uint) ([]*Tenant, error)
	// ListSubtree returns every tenant whose path starts with the given
	// prefix, including the tenant owning that path.
	ListSubtree(ctx context.Context, pathPrefix string) ([]*Tenant, error)
	// CountActiveChildren counts the direct children that are still active,
	// used to enforce bottom-up deactivation.
	CountActiveChildren(ctx context.Context, parentID uint) (int64, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	DomainExists(ctx context.Context, domain string, excludeID uint) (bool, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]*User, error)
	ListUsersByTenant(ctx context.Context, tenantID uint) ([]*User, error)
	// RevokeTenantSuperAdmins clears the super admin flag for every user in
	// the given tenants and returns how many rows changed.
	RevokeTenantSuperAdmins(ctx context.Context, tenantIDs []uint) (int64, error)

	// Audit log
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, filter *AuditFilter) ([]*AuditEntry, int64, error)

	// Federation system controls (singleton row)
	GetSystemControls(ctx context.Context) (*FederationSystemControls, error)
	GetSystemControlsForUpdate(ctx context.Context) (*FederationSystemControls, error)
	SaveSystemControls(ctx context.Context, controls *FederationSystemControls) error

	// Federation whitelist
	ListWhitelist(ctx context.Context) ([]*WhitelistEntry, error)
	GetWhitelistEntry(ctx context.Context, tenantID uint) (*WhitelistEntry, error)
	CreateWhitelistEntry(ctx context.Context, entry *WhitelistEntry) error
	DeleteWhitelistEntry(ctx context.Context, tenantID uint) error

	// Per-tenant capability overrides
	ListTenantOverrides(ctx context.Context, tenantID uint) ([]*TenantFeatureOverride, error)
	GetTenantOverride(ctx context.Context, tenantID uint, capability string) (*TenantFeatureOverride, error)
	SaveTenantOverride(ctx context.Context, override *TenantFeatureOverride) error

	// Partnerships
	CreatePartnership(ctx context.Context, partnership *Partnership) error
	GetPartnershipByID(ctx context.Context, id uint) (*Partnership, error)
	GetPartnershipByIDForUpdate(ctx context.Context, id uint) (*Partnership, error)
	UpdatePartnership(ctx context.Context, partnership *Partnership) error
	ListPartnershipsByTenant(ctx context.Context, tenantID uint) ([]*Partnership, error)
	ListPartnershipsByStatus(ctx context.Context, status string) ([]*Partnership, error)
	// FindPartnershipBetween returns the non-terminated partnership between
	// two tenants regardless of which side requested it, or nil.
	FindPartnershipBetween(ctx context.Context, tenantA, tenantB uint) (*Partnership, error)
	CountPartnershipsByStatus(ctx context.Context) (map[string]int64, error)
}
