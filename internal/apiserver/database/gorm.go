package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/config"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormDB implements the Database interface on top of gorm. The same
// implementation serves postgres, mysql and sqlite; only the dialector differs.
type gormDB struct {
	db  *gorm.DB
	cfg *config.DatabaseConfig
}

func newGormDB(dialector gorm.Dialector, cfg *config.DatabaseConfig) (Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Tenant{},
		&User{},
		&AuditEntry{},
		&FederationSystemControls{},
		&WhitelistEntry{},
		&TenantFeatureOverride{},
		&Partnership{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &gormDB{db: db, cfg: cfg}, nil
}

// Close closes the database connection
func (g *gormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a transaction, reusing one already on the context.
func (g *gormDB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(ctx)
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextWithTx(ctx, tx))
	})
}

// forUpdate adds a row lock on dialects that support one. SQLite serializes
// writers on its own, so the clause is skipped there.
func (g *gormDB) forUpdate(db *gorm.DB) *gorm.DB {
	if g.db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Tenants

func (g *gormDB) CreateTenant(ctx context.Context, tenant *Tenant) error {
	return getDBFromContext(ctx, g.db).Create(tenant).Error
}

func (g *gormDB) GetTenantByID(ctx context.Context, id uint) (*Tenant, error) {
	var tenant Tenant
	err := getDBFromContext(ctx, g.db).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (g *gormDB) GetTenantByIDForUpdate(ctx context.Context, id uint) (*Tenant, error) {
	var tenant Tenant
	err := g.forUpdate(getDBFromContext(ctx, g.db)).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (g *gormDB) UpdateTenant(ctx context.Context, tenant *Tenant) error {
	return getDBFromContext(ctx, g.db).Save(tenant).Error
}

func (g *gormDB) DeleteTenant(ctx context.Context, id uint) error {
	return getDBFromContext(ctx, g.db).Where("id = ?", id).Delete(&Tenant{}).Error
}

func (g *gormDB) ListChildTenants(ctx context.Context, parentID uint) ([]*Tenant, error) {
	var tenants []*Tenant
	err := getDBFromContext(ctx, g.db).
		Where("parent_id = ? AND deleted_at IS NULL", parentID).
		Order("name asc").
		Find(&tenants).Error
	return tenants, err
}

func (g *gormDB) ListSubtree(ctx context.Context, pathPrefix string) ([]*Tenant, error) {
	var tenants []*Tenant
	err := getDBFromContext(ctx, g.db).
		Where("path LIKE ? AND deleted_at IS NULL", pathPrefix+"%").
		Order("path asc").
		Find(&tenants).Error
	return tenants, err
}

func (g *gormDB) CountActiveChildren(ctx context.Context, parentID uint) (int64, error) {
	var count int64
	err := getDBFromContext(ctx, g.db).
		Model(&Tenant{}).
		Where("parent_id = ? AND is_active = ? AND deleted_at IS NULL", parentID, true).
		Count(&count).Error
	return count, err
}

func (g *gormDB) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := getDBFromContext(ctx, g.db).
		Model(&Tenant{}).
		Where("slug = ?", slug).
		Count(&count).Error
	return count > 0, err
}

func (g *gormDB) DomainExists(ctx context.Context, domain string, excludeID uint) (bool, error) {
	var count int64
	db := getDBFromContext(ctx, g.db).
		Model(&Tenant{}).
		Where("domain = ?", domain)
	if excludeID != 0 {
		db = db.Where("id <> ?", excludeID)
	}
	err := db.Count(&count).Error
	return count > 0, err
}

// Users

func (g *gormDB) CreateUser(ctx context.Context, user *User) error {
	return getDBFromContext(ctx, g.db).Create(user).Error
}

func (g *gormDB) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	err := getDBFromContext(ctx, g.db).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *gormDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := getDBFromContext(ctx, g.db).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *gormDB) UpdateUser(ctx context.Context, user *User) error {
	return getDBFromContext(ctx, g.db).Save(user).Error
}

func (g *gormDB) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	err := getDBFromContext(ctx, g.db).Order("id asc").Find(&users).Error
	return users, err
}

func (g *gormDB) ListUsersByTenant(ctx context.Context, tenantID uint) ([]*User, error) {
	var users []*User
	err := getDBFromContext(ctx, g.db).
		Where("tenant_id = ?", tenantID).
		Order("id asc").
		Find(&users).Error
	return users, err
}

func (g *gormDB) RevokeTenantSuperAdmins(ctx context.Context, tenantIDs []uint) (int64, error) {
	if len(tenantIDs) == 0 {
		return 0, nil
	}
	result := getDBFromContext(ctx, g.db).
		Model(&User{}).
		Where("tenant_id IN ? AND is_super_admin = ?", tenantIDs, true).
		Update("is_super_admin", false)
	return result.RowsAffected, result.Error
}

// Audit log

func (g *gormDB) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	return getDBFromContext(ctx, g.db).Create(entry).Error
}

func (g *gormDB) ListAuditEntries(ctx context.Context, filter *AuditFilter) ([]*AuditEntry, int64, error) {
	db := getDBFromContext(ctx, g.db).Model(&AuditEntry{})

	if filter != nil {
		if filter.ActionType != "" {
			db = db.Where("action_type = ?", filter.ActionType)
		}
		if filter.TargetType != "" {
			db = db.Where("target_type = ?", filter.TargetType)
		}
		if filter.TargetID != 0 {
			db = db.Where("target_id = ?", filter.TargetID)
		}
		if filter.ActorID != 0 {
			db = db.Where("actor_id = ?", filter.ActorID)
		}
		if filter.Level != "" {
			db = db.Where("level = ?", filter.Level)
		}
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			db = db.Where("action_type LIKE ? OR target_label LIKE ? OR description LIKE ? OR actor_username LIKE ?",
				like, like, like, like)
		}
		if filter.Since != nil {
			db = db.Where("created_at >= ?", *filter.Since)
		}
		if filter.Until != nil {
			db = db.Where("created_at <= ?", *filter.Until)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter != nil {
		if filter.Offset > 0 {
			db = db.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			db = db.Limit(filter.Limit)
		}
	}

	var entries []*AuditEntry
	err := db.Order("created_at desc, id desc").Find(&entries).Error
	return entries, total, err
}

// Federation system controls

func (g *gormDB) GetSystemControls(ctx context.Context) (*FederationSystemControls, error) {
	return g.loadSystemControls(ctx, false)
}

func (g *gormDB) GetSystemControlsForUpdate(ctx context.Context) (*FederationSystemControls, error) {
	return g.loadSystemControls(ctx, true)
}

func (g *gormDB) loadSystemControls(ctx context.Context, lock bool) (*FederationSystemControls, error) {
	db := getDBFromContext(ctx, g.db)
	if lock {
		db = g.forUpdate(db)
	}

	var controls FederationSystemControls
	err := db.Where("id = ?", 1).First(&controls).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		controls = defaultSystemControls()
		if err := getDBFromContext(ctx, g.db).Create(&controls).Error; err != nil {
			return nil, err
		}
		return &controls, nil
	}
	if err != nil {
		return nil, err
	}
	return &controls, nil
}

func defaultSystemControls() FederationSystemControls {
	return FederationSystemControls{
		ID:                  1,
		FederationEnabled:   true,
		ProfilesEnabled:     true,
		MessagingEnabled:    true,
		TransactionsEnabled: true,
		ListingsEnabled:     true,
		EventsEnabled:       true,
		GroupsEnabled:       true,
		MaxFederationLevel:  cnst.MaxFederationLevel,
	}
}

func (g *gormDB) SaveSystemControls(ctx context.Context, controls *FederationSystemControls) error {
	controls.ID = 1
	return getDBFromContext(ctx, g.db).Save(controls).Error
}

// Federation whitelist

func (g *gormDB) ListWhitelist(ctx context.Context) ([]*WhitelistEntry, error) {
	var entries []*WhitelistEntry
	err := getDBFromContext(ctx, g.db).Order("created_at asc").Find(&entries).Error
	return entries, err
}

func (g *gormDB) GetWhitelistEntry(ctx context.Context, tenantID uint) (*WhitelistEntry, error) {
	var entry WhitelistEntry
	err := getDBFromContext(ctx, g.db).Where("tenant_id = ?", tenantID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (g *gormDB) CreateWhitelistEntry(ctx context.Context, entry *WhitelistEntry) error {
	return getDBFromContext(ctx, g.db).Create(entry).Error
}

func (g *gormDB) DeleteWhitelistEntry(ctx context.Context, tenantID uint) error {
	return getDBFromContext(ctx, g.db).
		Where("tenant_id = ?", tenantID).
		Delete(&WhitelistEntry{}).Error
}

// Per-tenant capability overrides

func (g *gormDB) ListTenantOverrides(ctx context.Context, tenantID uint) ([]*TenantFeatureOverride, error) {
	var overrides []*TenantFeatureOverride
	err := getDBFromContext(ctx, g.db).
		Where("tenant_id = ?", tenantID).
		Find(&overrides).Error
	return overrides, err
}

func (g *gormDB) GetTenantOverride(ctx context.Context, tenantID uint, capability string) (*TenantFeatureOverride, error) {
	var override TenantFeatureOverride
	err := getDBFromContext(ctx, g.db).
		Where("tenant_id = ? AND capability = ?", tenantID, capability).
		First(&override).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &override, nil
}

func (g *gormDB) SaveTenantOverride(ctx context.Context, override *TenantFeatureOverride) error {
	return getDBFromContext(ctx, g.db).Save(override).Error
}

// Partnerships

func (g *gormDB) CreatePartnership(ctx context.Context, partnership *Partnership) error {
	return getDBFromContext(ctx, g.db).Create(partnership).Error
}

func (g *gormDB) GetPartnershipByID(ctx context.Context, id uint) (*Partnership, error) {
	var partnership Partnership
	err := getDBFromContext(ctx, g.db).Where("id = ?", id).First(&partnership).Error
	if err != nil {
		return nil, err
	}
	return &partnership, nil
}

func (g *gormDB) GetPartnershipByIDForUpdate(ctx context.Context, id uint) (*Partnership, error) {
	var partnership Partnership
	err := g.forUpdate(getDBFromContext(ctx, g.db)).Where("id = ?", id).First(&partnership).Error
	if err != nil {
		return nil, err
	}
	return &partnership, nil
}

func (g *gormDB) UpdatePartnership(ctx context.Context, partnership *Partnership) error {
	return getDBFromContext(ctx, g.db).Save(partnership).Error
}

func (g *gormDB) ListPartnershipsByTenant(ctx context.Context, tenantID uint) ([]*Partnership, error) {
	var partnerships []*Partnership
	err := getDBFromContext(ctx, g.db).
		Where("requester_tenant_id = ? OR partner_tenant_id = ?", tenantID, tenantID).
		Order("created_at desc").
		Find(&partnerships).Error
	return partnerships, err
}

func (g *gormDB) ListPartnershipsByStatus(ctx context.Context, status string) ([]*Partnership, error) {
	var partnerships []*Partnership
	err := getDBFromContext(ctx, g.db).
		Where("status = ?", status).
		Order("created_at desc").
		Find(&partnerships).Error
	return partnerships, err
}

func (g *gormDB) FindPartnershipBetween(ctx context.Context, tenantA, tenantB uint) (*Partnership, error) {
	var partnership Partnership
	err := getDBFromContext(ctx, g.db).
		Where("status <> ?", "terminated").
		Where(
			"(requester_tenant_id = ? AND partner_tenant_id = ?) OR (requester_tenant_id = ? AND partner_tenant_id = ?)",
			tenantA, tenantB, tenantB, tenantA,
		).
		First(&partnership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &partnership, nil
}

func (g *gormDB) CountPartnershipsByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := getDBFromContext(ctx, g.db).
		Model(&Partnership{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
