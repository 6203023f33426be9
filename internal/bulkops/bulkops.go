// Package bulkops runs batch mutations with per-item failure accounting.
// A batch commits what it can: failed items are reported, not fatal, and the
// whole batch produces exactly one summary audit entry.
package bulkops

import (
	"context"
	"fmt"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/pkg/metrics"

	"go.uber.org/zap"
)

// ItemError reports why one item of a batch was skipped.
type ItemError struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

// Result summarizes a batch run.
type Result struct {
	ProcessedCount int         `json:"processed_count"`
	TotalRequested int         `json:"total_requested"`
	Errors         []ItemError `json:"errors"`
}

// ContentRelocator moves the content a user owns between tenants. Bulk moves
// call it inside the batch transaction, so a relocation failure aborts the
// whole batch.
type ContentRelocator interface {
	RelocateUserContent(ctx context.Context, userID, fromTenantID, toTenantID uint) error
}

// Service executes bulk operations.
type Service struct {
	db        database.Database
	access    *access.Service
	audit     *audit.Service
	logger    *zap.Logger
	metrics   *metrics.Metrics
	relocator ContentRelocator
}

// NewService creates a new bulk operations service. metrics may be nil.
func NewService(db database.Database, accessSvc *access.Service, auditSvc *audit.Service, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		db:      db,
		access:  accessSvc,
		audit:   auditSvc,
		logger:  logger.Named("bulkops"),
		metrics: m,
	}
}

// SetContentRelocator wires the collaborator that carries user content along
// with bulk moves. Without one, moves only re-home the accounts.
func (s *Service) SetContentRelocator(r ContentRelocator) {
	s.relocator = r
}

// MoveUsers transfers many users into one destination tenant. Users that
// cannot be moved are skipped and reported; the rest commit together with the
// summary audit entry. With grantSuperAdmin set, every moved user arrives as a
// super admin of the destination, which must be a hub.
func (s *Service) MoveUsers(ctx context.Context, scope *access.Scope, userIDs []uint, destTenantID uint, grantSuperAdmin bool) (*Result, error) {
	if len(userIDs) == 0 {
		return nil, errorx.ValidationError("user_ids", userIDs, "at least one user is required")
	}

	dest, err := s.access.RequireManage(ctx, scope, destTenantID)
	if err != nil {
		return nil, err
	}
	if !dest.IsActive {
		return nil, errorx.InvariantError("cannot move users into an inactive tenant")
	}
	if grantSuperAdmin && !dest.IsHub {
		return nil, errorx.InvariantError("Cannot grant Super Admin: target tenant is not a Hub")
	}

	result := &Result{TotalRequested: len(userIDs), Errors: []ItemError{}}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		for _, userID := range userIDs {
			user, err := s.db.GetUserByID(txCtx, userID)
			if err != nil {
				result.Errors = append(result.Errors, ItemError{ID: userID, Reason: "user not found"})
				continue
			}
			if user.TenantID == destTenantID {
				result.Errors = append(result.Errors, ItemError{ID: userID, Reason: "already in destination tenant"})
				continue
			}
			source, err := s.db.GetTenantByID(txCtx, user.TenantID)
			if err != nil {
				result.Errors = append(result.Errors, ItemError{ID: userID, Reason: "source tenant not found"})
				continue
			}
			if ok, reason := s.access.CanManageTenant(scope, source); !ok {
				result.Errors = append(result.Errors, ItemError{ID: userID, Reason: reason})
				continue
			}

			fromTenant := user.TenantID
			user.TenantID = destTenantID
			user.IsSuperAdmin = grantSuperAdmin
			if err := s.db.UpdateUser(txCtx, user); err != nil {
				result.Errors = append(result.Errors, ItemError{ID: userID, Reason: "update failed"})
				continue
			}
			if s.relocator != nil {
				if err := s.relocator.RelocateUserContent(txCtx, user.ID, fromTenant, destTenantID); err != nil {
					return errorx.ErrDatabaseError
				}
			}
			result.ProcessedCount++
		}

		return s.audit.Append(txCtx, audit.Actor{ID: scope.User.ID, Username: scope.User.Username}, audit.Record{
			Action:     cnst.ActionBulkUsersMoved,
			TargetType: cnst.TargetBulk,
			TargetID:   destTenantID,
			Level:      cnst.LevelWarning,
			Data: map[string]any{
				"moved_count":       result.ProcessedCount,
				"total_requested":   result.TotalRequested,
				"destination":       destTenantID,
				"grant_super_admin": grantSuperAdmin,
				"errors":            result.Errors,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionBulkUsersMoved, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionBulkUsersMoved, "ok")
	s.logger.Info("bulk user move finished",
		zap.Int("moved", result.ProcessedCount),
		zap.Int("requested", result.TotalRequested),
		zap.Uint("destination", destTenantID))
	return result, nil
}

// Actions a bulk tenant update may apply.
const (
	TenantActionActivate   = "activate"
	TenantActionDeactivate = "deactivate"
	TenantActionEnableHub  = "enable_hub"
	TenantActionDisableHub = "disable_hub"
)

// TenantPatch describes one bulk tenant change. Action is one of the
// TenantAction constants, or empty when only Features or Config change.
type TenantPatch struct {
	Action   string
	Features map[string]any
	Config   map[string]any
}

// UpdateTenants applies the same patch to many tenants, skipping the ones the
// patch cannot legally touch.
func (s *Service) UpdateTenants(ctx context.Context, scope *access.Scope, tenantIDs []uint, patch TenantPatch) (*Result, error) {
	if len(tenantIDs) == 0 {
		return nil, errorx.ValidationError("tenant_ids", tenantIDs, "at least one tenant is required")
	}
	switch patch.Action {
	case TenantActionActivate, TenantActionDeactivate, TenantActionEnableHub, TenantActionDisableHub:
	case "":
		if patch.Features == nil && patch.Config == nil {
			return nil, errorx.ValidationError("patch", nil, "nothing to update")
		}
	default:
		return nil, errorx.ValidationError("action", patch.Action, "unknown bulk tenant action")
	}

	result := &Result{TotalRequested: len(tenantIDs), Errors: []ItemError{}}

	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		for _, tenantID := range tenantIDs {
			tenant, err := s.db.GetTenantByID(txCtx, tenantID)
			if err != nil {
				result.Errors = append(result.Errors, ItemError{ID: tenantID, Reason: "tenant not found"})
				continue
			}
			if ok, reason := s.access.CanManageTenant(scope, tenant); !ok {
				result.Errors = append(result.Errors, ItemError{ID: tenantID, Reason: reason})
				continue
			}
			if err := s.applyPatch(txCtx, tenant, patch); err != nil {
				result.Errors = append(result.Errors, ItemError{ID: tenantID, Reason: err.Error()})
				continue
			}
			result.ProcessedCount++
		}

		return s.audit.Append(txCtx, audit.Actor{ID: scope.User.ID, Username: scope.User.Username}, audit.Record{
			Action:     cnst.ActionBulkTenantsUpdated,
			TargetType: cnst.TargetBulk,
			Level:      cnst.LevelWarning,
			Data: map[string]any{
				"updated_count":   result.ProcessedCount,
				"total_requested": result.TotalRequested,
				"errors":          result.Errors,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionBulkTenantsUpdated, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionBulkTenantsUpdated, "ok")
	return result, nil
}

func (s *Service) applyPatch(ctx context.Context, tenant *database.Tenant, patch TenantPatch) error {
	switch patch.Action {
	case TenantActionActivate:
		if tenant.ParentID != nil {
			parent, err := s.db.GetTenantByID(ctx, *tenant.ParentID)
			if err != nil {
				return fmt.Errorf("parent not found")
			}
			if !parent.IsActive {
				return fmt.Errorf("parent tenant is inactive")
			}
		}
		tenant.DeletedAt = nil
		tenant.IsActive = true
	case TenantActionDeactivate:
		if tenant.IsMaster() {
			return fmt.Errorf("the root tenant cannot be deactivated")
		}
		active, err := s.db.CountActiveChildren(ctx, tenant.ID)
		if err != nil {
			return fmt.Errorf("child lookup failed")
		}
		if active > 0 {
			return fmt.Errorf("active children remain")
		}
		tenant.IsActive = false
	case TenantActionEnableHub:
		tenant.IsHub = true
		if tenant.MaxSubDepth == 0 {
			tenant.MaxSubDepth = cnst.DefaultHubSubDepth
		}
	case TenantActionDisableHub:
		if tenant.IsMaster() {
			return fmt.Errorf("the root tenant is always a hub")
		}
		if tenant.IsHub {
			if err := s.revokeAnchoredSuperAdmins(ctx, tenant); err != nil {
				return err
			}
		}
		tenant.IsHub = false
		tenant.MaxSubDepth = 0
	}
	if patch.Features != nil {
		tenant.Features = patch.Features
	}
	if patch.Config != nil {
		tenant.Config = patch.Config
	}
	if err := s.db.UpdateTenant(ctx, tenant); err != nil {
		return fmt.Errorf("update failed")
	}
	return nil
}

// revokeAnchoredSuperAdmins mirrors what disabling a hub does elsewhere: the
// tenant's own admins and those of non-hub descendants lose the grant, while
// descendant hubs keep theirs.
func (s *Service) revokeAnchoredSuperAdmins(ctx context.Context, tenant *database.Tenant) error {
	subtree, err := s.db.ListSubtree(ctx, tenant.Path)
	if err != nil {
		return fmt.Errorf("subtree lookup failed")
	}
	revokeIDs := make([]uint, 0, len(subtree))
	revokeIDs = append(revokeIDs, tenant.ID)
	for _, node := range subtree {
		if node.ID != tenant.ID && !node.IsHub {
			revokeIDs = append(revokeIDs, node.ID)
		}
	}
	if _, err := s.db.RevokeTenantSuperAdmins(ctx, revokeIDs); err != nil {
		return fmt.Errorf("revoking super admin grants failed")
	}
	return nil
}

func (s *Service) mutationDone(action, status string) {
	if s.metrics != nil {
		s.metrics.MutationDone(action, status)
	}
}
