// Package access resolves the administrative scope of a user and answers
// whether a given tenant falls inside it. Every privileged operation checks
// here before touching the hierarchy.
package access

import (
	"context"
	"fmt"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/errorx"

	"go.uber.org/zap"
)

// Level is the rung of the administrative ladder a user stands on.
type Level string

const (
	// LevelGod is a global super admin: unrestricted across the hierarchy.
	LevelGod Level = "god"
	// LevelMasterHubAdmin is a super admin whose home tenant is the root hub.
	LevelMasterHubAdmin Level = "master_hub_admin"
	// LevelTenantAdmin is a super admin of any other tenant.
	LevelTenantAdmin Level = "tenant_admin"
	// LevelNone has no administrative standing.
	LevelNone Level = "none"
)

// Scope couples a resolved user with their home tenant and level.
type Scope struct {
	User   *database.User
	Tenant *database.Tenant
	Level  Level
}

// IsGod reports whether the scope bypasses subtree checks.
func (s *Scope) IsGod() bool {
	return s.Level == LevelGod
}

// Service resolves scopes against the database.
type Service struct {
	db     database.Database
	logger *zap.Logger
}

func NewService(db database.Database, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.Named("access"),
	}
}

// Resolve loads the user and computes their administrative level. Users with
// no standing get ErrForbidden.
func (s *Service) Resolve(ctx context.Context, userID uint) (*Scope, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errorx.NotFoundError("user", userID)
	}
	if !user.IsActive {
		return nil, errorx.ErrForbidden
	}

	tenant, err := s.db.GetTenantByID(ctx, user.TenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", user.TenantID)
	}

	level := LevelNone
	switch {
	case user.IsGlobalSuperAdmin:
		level = LevelGod
	case user.IsSuperAdmin && tenant.IsMaster():
		level = LevelMasterHubAdmin
	case user.IsSuperAdmin:
		level = LevelTenantAdmin
	}

	if level == LevelNone {
		s.logger.Warn("user has no administrative standing",
			zap.Uint("user_id", userID))
		return nil, errorx.ErrForbidden
	}

	return &Scope{User: user, Tenant: tenant, Level: level}, nil
}

// CanAccessTenant reports whether the scope may view the target tenant.
// Anything inside the scope's home subtree, including the home tenant itself,
// is visible.
func (s *Service) CanAccessTenant(scope *Scope, target *database.Tenant) (bool, string) {
	if scope.IsGod() {
		return true, ""
	}
	if target.ID == scope.Tenant.ID || target.IsDescendantOf(scope.Tenant) {
		return true, ""
	}
	return false, "tenant is outside your administrative subtree"
}

// CanManageTenant reports whether the scope may mutate the target tenant.
// Managing requires the same subtree containment as access, plus an active
// home tenant. The root tenant is never manageable by anyone below god, not
// even its own admins.
func (s *Service) CanManageTenant(scope *Scope, target *database.Tenant) (bool, string) {
	if scope.IsGod() {
		return true, ""
	}
	if target.IsMaster() {
		return false, "the root tenant can only be managed by a global super admin"
	}
	if !scope.Tenant.IsActive {
		return false, "your home tenant is deactivated"
	}
	if ok, reason := s.CanAccessTenant(scope, target); !ok {
		return false, reason
	}
	return true, ""
}

// CanCreateSubtenantUnder reports whether the scope may create a child under
// the given parent.
func (s *Service) CanCreateSubtenantUnder(scope *Scope, parent *database.Tenant) (bool, string) {
	if ok, reason := s.CanManageTenant(scope, parent); !ok {
		return false, reason
	}
	if !parent.IsActive {
		return false, "parent tenant is deactivated"
	}
	if !parent.IsHub {
		return false, "parent tenant does not allow sub-tenants"
	}
	// the root tenant is the only hub without a recorded depth budget
	if !parent.IsMaster() && parent.MaxSubDepth < 1 {
		return false, "parent tenant has no sub-tenant depth budget"
	}
	return true, ""
}

// RequireManage resolves the target tenant and enforces manage rights in one
// step, returning the loaded tenant on success.
func (s *Service) RequireManage(ctx context.Context, scope *Scope, tenantID uint) (*database.Tenant, error) {
	target, err := s.db.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", tenantID)
	}
	if ok, reason := s.CanManageTenant(scope, target); !ok {
		return nil, errorx.ScopeDeniedError(fmt.Sprintf("manage tenant %d", tenantID), reason)
	}
	return target, nil
}

// MasterSubtreePath returns the path prefix of the root hub, used when god
// scope needs the whole tree.
func MasterSubtreePath() string {
	return fmt.Sprintf("/%d/", cnst.MasterTenantID)
}
