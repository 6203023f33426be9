package hierarchy

import (
	"context"
	"strings"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/errorx"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CreateUserInput carries the fields for a new user account.
type CreateUserInput struct {
	TenantID     uint
	Username     string
	Email        string
	Password     string
	IsSuperAdmin bool
}

// CreateUser creates an account in a tenant the scope manages.
func (s *Service) CreateUser(ctx context.Context, scope *access.Scope, in CreateUserInput) (*database.User, error) {
	if strings.TrimSpace(in.Username) == "" {
		return nil, errorx.ValidationError("username", in.Username, "username is required")
	}
	if len(in.Password) < 8 {
		return nil, errorx.ValidationError("password", "", "password must be at least 8 characters")
	}

	tenant, err := s.access.RequireManage(ctx, scope, in.TenantID)
	if err != nil {
		s.scopeDenied("create user")
		return nil, err
	}
	if in.IsSuperAdmin && !tenant.IsHub {
		return nil, errorx.InvariantError("Cannot grant Super Admin: target tenant is not a Hub")
	}

	if _, err := s.db.GetUserByUsername(ctx, in.Username); err == nil {
		return nil, errorx.ConflictError("user", "username", in.Username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errorx.ErrInternalServer
	}

	user := &database.User{
		TenantID:     in.TenantID,
		Username:     in.Username,
		Email:        in.Email,
		Password:     string(hashed),
		Role:         database.RoleNormal,
		IsSuperAdmin: in.IsSuperAdmin,
		IsActive:     true,
	}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.db.CreateUser(txCtx, user); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionUserCreated,
			TargetType:  cnst.TargetUser,
			TargetID:    user.ID,
			TargetLabel: user.Username,
			Data: map[string]any{
				"username":       user.Username,
				"tenant_id":      user.TenantID,
				"is_super_admin": user.IsSuperAdmin,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionUserCreated, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionUserCreated, "ok")
	return user, nil
}

// MoveUser transfers a user to another tenant the scope manages. Any tenant
// super admin grant is dropped on the way: it was scoped to the old tenant.
func (s *Service) MoveUser(ctx context.Context, scope *access.Scope, userID, destTenantID uint) (*database.User, error) {
	return s.moveUser(ctx, scope, userID, destTenantID, false)
}

// MoveAndPromote transfers a user and grants them super admin over the
// destination tenant in the same transaction.
func (s *Service) MoveAndPromote(ctx context.Context, scope *access.Scope, userID, destTenantID uint) (*database.User, error) {
	return s.moveUser(ctx, scope, userID, destTenantID, true)
}

func (s *Service) moveUser(ctx context.Context, scope *access.Scope, userID, destTenantID uint, promote bool) (*database.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errorx.NotFoundError("user", userID)
	}

	// both ends of the move must be manageable
	if _, err := s.access.RequireManage(ctx, scope, user.TenantID); err != nil {
		s.scopeDenied("move user")
		return nil, err
	}
	dest, err := s.access.RequireManage(ctx, scope, destTenantID)
	if err != nil {
		s.scopeDenied("move user")
		return nil, err
	}
	if !dest.IsActive {
		return nil, errorx.InvariantError("cannot move a user into an inactive tenant")
	}
	if promote && !dest.IsHub {
		return nil, errorx.InvariantError("Cannot grant Super Admin: target tenant is not a Hub")
	}
	if user.TenantID == destTenantID {
		return nil, errorx.ValidationError("tenant_id", destTenantID, "user already belongs to this tenant")
	}

	fromTenant := user.TenantID
	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		user.TenantID = destTenantID
		user.IsSuperAdmin = promote
		if err := s.db.UpdateUser(txCtx, user); err != nil {
			return errorx.ErrDatabaseError
		}
		if s.relocator != nil {
			if err := s.relocator.RelocateUserContent(txCtx, user.ID, fromTenant, destTenantID); err != nil {
				return errorx.ErrDatabaseError
			}
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionUserMoved,
			TargetType:  cnst.TargetUser,
			TargetID:    user.ID,
			TargetLabel: user.Username,
			Data: map[string]any{
				"from_tenant": fromTenant,
				"to_tenant":   destTenantID,
				"promoted":    promote,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionUserMoved, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionUserMoved, "ok")
	s.logger.Info("user moved",
		zap.Uint("user_id", user.ID),
		zap.Uint("from_tenant", fromTenant),
		zap.Uint("to_tenant", destTenantID),
		zap.Bool("promoted", promote))
	return user, nil
}

// AssignTenantSuperAdmin grants a user super admin over their own tenant.
func (s *Service) AssignTenantSuperAdmin(ctx context.Context, scope *access.Scope, userID uint) (*database.User, error) {
	return s.setSuperAdmin(ctx, scope, userID, true)
}

// RevokeTenantSuperAdmin removes a user's tenant super admin grant.
func (s *Service) RevokeTenantSuperAdmin(ctx context.Context, scope *access.Scope, userID uint) (*database.User, error) {
	return s.setSuperAdmin(ctx, scope, userID, false)
}

func (s *Service) setSuperAdmin(ctx context.Context, scope *access.Scope, userID uint, grant bool) (*database.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errorx.NotFoundError("user", userID)
	}
	tenant, err := s.access.RequireManage(ctx, scope, user.TenantID)
	if err != nil {
		s.scopeDenied("set super admin")
		return nil, err
	}
	if grant && !tenant.IsHub {
		return nil, errorx.InvariantError("Cannot grant Super Admin: target tenant is not a Hub")
	}
	if !grant && user.IsGlobalSuperAdmin && !scope.IsGod() {
		s.scopeDenied("set super admin")
		return nil, errorx.ScopeDeniedError("revoke super admin", "only a global super admin may demote another global super admin")
	}
	if user.IsSuperAdmin == grant {
		return user, nil
	}

	action := cnst.ActionSuperAdminGranted
	if !grant {
		action = cnst.ActionSuperAdminRevoked
	}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		user.IsSuperAdmin = grant
		if err := s.db.UpdateUser(txCtx, user); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      action,
			TargetType:  cnst.TargetUser,
			TargetID:    user.ID,
			TargetLabel: user.Username,
			Level:       cnst.LevelWarning,
			Data: map[string]any{
				"username":  user.Username,
				"tenant_id": user.TenantID,
			},
		})
	})
	if err != nil {
		s.mutationDone(action, "error")
		return nil, err
	}

	s.mutationDone(action, "ok")
	return user, nil
}

// GrantGlobalSuperAdmin elevates a user to god level. Only god scope may do
// this.
func (s *Service) GrantGlobalSuperAdmin(ctx context.Context, scope *access.Scope, userID uint) (*database.User, error) {
	return s.setGlobalSuperAdmin(ctx, scope, userID, true)
}

// RevokeGlobalSuperAdmin removes god level from a user. Self-revocation is
// refused so the system cannot lock out its last global admin by accident.
func (s *Service) RevokeGlobalSuperAdmin(ctx context.Context, scope *access.Scope, userID uint) (*database.User, error) {
	if scope.User.ID == userID {
		return nil, errorx.InvariantError("cannot revoke your own global super admin grant")
	}
	return s.setGlobalSuperAdmin(ctx, scope, userID, false)
}

func (s *Service) setGlobalSuperAdmin(ctx context.Context, scope *access.Scope, userID uint, grant bool) (*database.User, error) {
	if !scope.IsGod() {
		s.scopeDenied("set global super admin")
		return nil, errorx.ScopeDeniedError("set global super admin", "only a global super admin may change global grants")
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errorx.NotFoundError("user", userID)
	}
	if user.IsGlobalSuperAdmin == grant {
		return user, nil
	}

	action := cnst.ActionGlobalAdminGranted
	if !grant {
		action = cnst.ActionGlobalAdminRevoked
	}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		user.IsGlobalSuperAdmin = grant
		if err := s.db.UpdateUser(txCtx, user); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      action,
			TargetType:  cnst.TargetUser,
			TargetID:    user.ID,
			TargetLabel: user.Username,
			Level:       cnst.LevelCritical,
			Data: map[string]any{
				"username": user.Username,
			},
		})
	})
	if err != nil {
		s.mutationDone(action, "error")
		return nil, err
	}

	s.mutationDone(action, "ok")
	s.logger.Warn("global super admin grant changed",
		zap.Uint("user_id", user.ID),
		zap.Bool("granted", grant),
		zap.Uint("by", scope.User.ID))
	return user, nil
}
