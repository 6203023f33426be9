package hierarchy

import (
	"context"
	"strings"
	"time"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/errorx"

	"go.uber.org/zap"
)

// CreateTenantInput carries the fields for a new tenant.
type CreateTenantInput struct {
	ParentID    uint
	Name        string
	Domain      string
	Description string
	IsHub       bool
	MaxSubDepth int
	Features    map[string]any
	Config      map[string]any
}

// CreateTenant creates a sub-tenant under an existing hub.
func (s *Service) CreateTenant(ctx context.Context, scope *access.Scope, in CreateTenantInput) (*database.Tenant, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errorx.ValidationError("name", in.Name, "name is required")
	}

	parent, err := s.db.GetTenantByID(ctx, in.ParentID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", in.ParentID)
	}
	if ok, reason := s.access.CanCreateSubtenantUnder(scope, parent); !ok {
		s.scopeDenied("create tenant")
		return nil, errorx.ScopeDeniedError("create sub-tenant", reason)
	}
	if err := s.checkDepthBudget(ctx, parent, parent.Depth+1); err != nil {
		return nil, err
	}
	if in.Domain != "" {
		taken, err := s.db.DomainExists(ctx, in.Domain, 0)
		if err != nil {
			return nil, errorx.ErrDatabaseError
		}
		if taken {
			return nil, errorx.ConflictError("tenant", "domain", in.Domain)
		}
	}

	// a hub always carries a depth budget
	if in.IsHub && in.MaxSubDepth == 0 {
		in.MaxSubDepth = cnst.DefaultHubSubDepth
	}

	var tenant *database.Tenant
	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		slug, err := uniqueSlug(txCtx, s.db, in.Name)
		if err != nil {
			return errorx.ErrDatabaseError
		}

		tenant = &database.Tenant{
			ParentID:    &parent.ID,
			Name:        in.Name,
			Slug:        slug,
			Domain:      in.Domain,
			Description: in.Description,
			IsActive:    true,
			IsHub:       in.IsHub,
			MaxSubDepth: in.MaxSubDepth,
			Features:    in.Features,
			Config:      in.Config,
		}
		if err := s.db.CreateTenant(txCtx, tenant); err != nil {
			return errorx.ErrDatabaseError
		}

		// the materialized path needs the generated ID
		tenant.Path = parent.ChildPath(tenant.ID)
		tenant.Depth = parent.Depth + 1
		if err := s.db.UpdateTenant(txCtx, tenant); err != nil {
			return errorx.ErrDatabaseError
		}

		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionTenantCreated,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenant.ID,
			TargetLabel: tenant.Name,
			Data: map[string]any{
				"name":      tenant.Name,
				"slug":      tenant.Slug,
				"parent_id": parent.ID,
				"is_hub":    tenant.IsHub,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantCreated, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionTenantCreated, "ok")
	s.logger.Info("tenant created",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.Uint("parent_id", parent.ID))
	return tenant, nil
}

// UpdateTenantInput updates only the fields whose pointers are non-nil.
// Features and Config replace the stored maps wholesale when non-nil.
type UpdateTenantInput struct {
	Name        *string
	Domain      *string
	Description *string
	MaxSubDepth *int
	IsActive    *bool
	Features    map[string]any
	Config      map[string]any
}

// UpdateTenant applies an explicit-field update. Reactivating a tenant
// requires an active parent; the root tenant can never be deactivated.
func (s *Service) UpdateTenant(ctx context.Context, scope *access.Scope, id uint, in UpdateTenantInput) (*database.Tenant, error) {
	tenant, err := s.access.RequireManage(ctx, scope, id)
	if err != nil {
		s.scopeDenied("update tenant")
		return nil, err
	}

	changed := map[string]any{}

	if in.Name != nil && *in.Name != tenant.Name {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, errorx.ValidationError("name", *in.Name, "name is required")
		}
		changed["name"] = map[string]any{"from": tenant.Name, "to": *in.Name}
		tenant.Name = *in.Name
	}
	if in.Domain != nil && *in.Domain != tenant.Domain {
		if *in.Domain != "" {
			taken, err := s.db.DomainExists(ctx, *in.Domain, tenant.ID)
			if err != nil {
				return nil, errorx.ErrDatabaseError
			}
			if taken {
				return nil, errorx.ConflictError("tenant", "domain", *in.Domain)
			}
		}
		changed["domain"] = map[string]any{"from": tenant.Domain, "to": *in.Domain}
		tenant.Domain = *in.Domain
	}
	if in.Description != nil && *in.Description != tenant.Description {
		changed["description"] = true
		tenant.Description = *in.Description
	}
	if in.MaxSubDepth != nil && *in.MaxSubDepth != tenant.MaxSubDepth {
		if *in.MaxSubDepth < 0 {
			return nil, errorx.ValidationError("max_sub_depth", *in.MaxSubDepth, "must be >= 0")
		}
		if !tenant.IsMaster() {
			deepest, err := s.deepestDescendantDepth(ctx, tenant)
			if err != nil {
				return nil, err
			}
			if deepest-tenant.Depth > *in.MaxSubDepth {
				return nil, errorx.ErrDepthExceeded.
					WithDetail("existing_depth", deepest-tenant.Depth).
					WithDetail("requested_max", *in.MaxSubDepth)
			}
		}
		changed["max_sub_depth"] = map[string]any{"from": tenant.MaxSubDepth, "to": *in.MaxSubDepth}
		tenant.MaxSubDepth = *in.MaxSubDepth
	}
	if in.IsActive != nil && *in.IsActive != tenant.IsActive {
		if !*in.IsActive {
			if tenant.IsMaster() {
				return nil, errorx.ErrMasterProtected
			}
			// an active tenant always sits under an active parent, so
			// children go dark before their parent does
			active, err := s.db.CountActiveChildren(ctx, tenant.ID)
			if err != nil {
				return nil, errorx.ErrDatabaseError
			}
			if active > 0 {
				return nil, errorx.InvariantError("deactivate the active children first").
					WithDetail("active_children", active)
			}
		}
		if *in.IsActive {
			if err := s.requireActiveParent(ctx, tenant); err != nil {
				return nil, err
			}
			tenant.DeletedAt = nil
		}
		changed["is_active"] = map[string]any{"from": tenant.IsActive, "to": *in.IsActive}
		tenant.IsActive = *in.IsActive
	}
	if in.Features != nil {
		changed["features"] = true
		tenant.Features = in.Features
	}
	if in.Config != nil {
		changed["config"] = true
		tenant.Config = in.Config
	}

	if len(changed) == 0 {
		return tenant, nil
	}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.db.UpdateTenant(txCtx, tenant); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionTenantUpdated,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenant.ID,
			TargetLabel: tenant.Name,
			Data:        map[string]any{"changes": changed},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantUpdated, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionTenantUpdated, "ok")
	return tenant, nil
}

func (s *Service) requireActiveParent(ctx context.Context, tenant *database.Tenant) error {
	if tenant.ParentID == nil {
		return nil
	}
	parent, err := s.db.GetTenantByID(ctx, *tenant.ParentID)
	if err != nil {
		return errorx.NotFoundError("tenant", *tenant.ParentID)
	}
	if !parent.IsActive {
		return errorx.InvariantError("cannot reactivate a tenant under an inactive parent")
	}
	return nil
}

func (s *Service) deepestDescendantDepth(ctx context.Context, tenant *database.Tenant) (int, error) {
	subtree, err := s.db.ListSubtree(ctx, tenant.Path)
	if err != nil {
		return 0, errorx.ErrDatabaseError
	}
	deepest := tenant.Depth
	for _, node := range subtree {
		if node.Depth > deepest {
			deepest = node.Depth
		}
	}
	return deepest, nil
}

// MoveTenant reparents a tenant and rewrites the materialized paths of its
// whole subtree in one transaction.
func (s *Service) MoveTenant(ctx context.Context, scope *access.Scope, id, newParentID uint) (*database.Tenant, error) {
	tenant, err := s.access.RequireManage(ctx, scope, id)
	if err != nil {
		s.scopeDenied("move tenant")
		return nil, err
	}
	if tenant.IsMaster() {
		return nil, errorx.ErrMasterProtected
	}
	if tenant.ParentID != nil && *tenant.ParentID == newParentID {
		return nil, errorx.ValidationError("new_parent_id", newParentID, "tenant is already under this parent")
	}

	newParent, err := s.db.GetTenantByID(ctx, newParentID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", newParentID)
	}
	if ok, reason := s.access.CanCreateSubtenantUnder(scope, newParent); !ok {
		s.scopeDenied("move tenant")
		return nil, errorx.ScopeDeniedError("move tenant", reason)
	}

	// a tenant cannot move under itself or any of its descendants
	if newParent.ID == tenant.ID || newParent.IsDescendantOf(tenant) {
		return nil, errorx.ErrCycleDetected
	}

	oldParentID := uint(0)
	if tenant.ParentID != nil {
		oldParentID = *tenant.ParentID
	}
	oldPath := tenant.Path

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		// re-read under the transaction so concurrent moves serialize
		locked, err := s.db.GetTenantByIDForUpdate(txCtx, tenant.ID)
		if err != nil {
			return errorx.NotFoundError("tenant", tenant.ID)
		}

		subtree, err := s.db.ListSubtree(txCtx, locked.Path)
		if err != nil {
			return errorx.ErrDatabaseError
		}

		shift := newParent.Depth + 1 - locked.Depth
		deepest := locked.Depth
		for _, node := range subtree {
			if node.Depth > deepest {
				deepest = node.Depth
			}
		}
		if err := s.checkDepthBudget(txCtx, newParent, deepest+shift); err != nil {
			return err
		}

		newRootPath := newParent.ChildPath(locked.ID)
		for _, node := range subtree {
			node.Path = newRootPath + strings.TrimPrefix(node.Path, locked.Path)
			node.Depth += shift
			if node.ID == locked.ID {
				node.ParentID = &newParent.ID
			}
			if err := s.db.UpdateTenant(txCtx, node); err != nil {
				return errorx.ErrDatabaseError
			}
			if node.ID == tenant.ID {
				*tenant = *node
			}
		}

		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionTenantMoved,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenant.ID,
			TargetLabel: tenant.Name,
			Level:       cnst.LevelWarning,
			Data: map[string]any{
				"from_parent": oldParentID,
				"to_parent":   newParent.ID,
				"old_path":    oldPath,
				"new_path":    tenant.Path,
				"moved_nodes": len(subtree),
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantMoved, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionTenantMoved, "ok")
	s.logger.Info("tenant moved",
		zap.Uint("tenant_id", tenant.ID),
		zap.Uint("from_parent", oldParentID),
		zap.Uint("to_parent", newParent.ID))
	return tenant, nil
}

// DeleteTenant soft-deletes by default; hard permanently removes the row.
// Both refuse while the tenant still has undeleted children.
func (s *Service) DeleteTenant(ctx context.Context, scope *access.Scope, id uint, hard bool) error {
	tenant, err := s.access.RequireManage(ctx, scope, id)
	if err != nil {
		s.scopeDenied("delete tenant")
		return err
	}
	if tenant.IsMaster() {
		return errorx.ErrMasterProtected
	}

	children, err := s.db.ListChildTenants(ctx, tenant.ID)
	if err != nil {
		return errorx.ErrDatabaseError
	}
	if len(children) > 0 {
		return errorx.ErrTenantHasChildren.WithDetail("children", len(children))
	}

	mode := "soft"
	level := cnst.LevelWarning
	if hard {
		mode = "hard"
		level = cnst.LevelCritical
	}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if hard {
			if err := s.db.DeleteTenant(txCtx, tenant.ID); err != nil {
				return errorx.ErrDatabaseError
			}
		} else {
			now := time.Now()
			tenant.IsActive = false
			tenant.DeletedAt = &now
			if err := s.db.UpdateTenant(txCtx, tenant); err != nil {
				return errorx.ErrDatabaseError
			}
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionTenantDeleted,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenant.ID,
			TargetLabel: tenant.Name,
			Level:       level,
			Data: map[string]any{
				"name": tenant.Name,
				"slug": tenant.Slug,
				"mode": mode,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantDeleted, "error")
		return err
	}

	s.mutationDone(cnst.ActionTenantDeleted, "ok")
	s.logger.Info("tenant deleted",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("mode", mode))
	return nil
}

// ToggleHub flips whether a tenant may host sub-tenants. Disabling a hub
// eagerly revokes the super admin grants it anchored: the tenant's own users
// lose the flag, and so do users of non-hub descendants. Admins of descendant
// tenants that are hubs in their own right keep theirs. Enabling grants a
// default sub-depth allowance when none is set.
func (s *Service) ToggleHub(ctx context.Context, scope *access.Scope, id uint, enable bool) (*database.Tenant, error) {
	tenant, err := s.access.RequireManage(ctx, scope, id)
	if err != nil {
		s.scopeDenied("toggle hub")
		return nil, err
	}
	if tenant.IsMaster() && !enable {
		return nil, errorx.ErrMasterProtected
	}
	if tenant.IsHub == enable {
		return nil, errorx.ValidationError("is_hub", enable, "tenant is already in that state")
	}

	var revoked int64
	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		tenant.IsHub = enable
		if enable {
			if tenant.MaxSubDepth == 0 {
				tenant.MaxSubDepth = cnst.DefaultHubSubDepth
			}
		} else {
			// non-hub tenants carry no sub-depth allowance
			tenant.MaxSubDepth = 0
		}
		if err := s.db.UpdateTenant(txCtx, tenant); err != nil {
			return errorx.ErrDatabaseError
		}

		level := cnst.LevelInfo
		if !enable {
			subtree, err := s.db.ListSubtree(txCtx, tenant.Path)
			if err != nil {
				return errorx.ErrDatabaseError
			}
			revokeIDs := make([]uint, 0, len(subtree))
			revokeIDs = append(revokeIDs, tenant.ID)
			for _, node := range subtree {
				if node.ID != tenant.ID && !node.IsHub {
					revokeIDs = append(revokeIDs, node.ID)
				}
			}
			revoked, err = s.db.RevokeTenantSuperAdmins(txCtx, revokeIDs)
			if err != nil {
				return errorx.ErrDatabaseError
			}
			level = cnst.LevelWarning
		}

		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionHubToggled,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenant.ID,
			TargetLabel: tenant.Name,
			Level:       level,
			Data: map[string]any{
				"is_hub":               enable,
				"revoked_super_admins": revoked,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionHubToggled, "error")
		return nil, err
	}

	s.mutationDone(cnst.ActionHubToggled, "ok")
	if !enable && revoked > 0 {
		s.logger.Warn("hub disabled, anchored super admins revoked",
			zap.Uint("tenant_id", tenant.ID),
			zap.Int64("revoked", revoked))
	}
	return tenant, nil
}

// TenantNode is a tenant with its children nested, for tree responses.
type TenantNode struct {
	*database.Tenant
	Children []*TenantNode `json:"children"`
}

// BuildTree nests a path-ordered flat list into parent/child nodes. Nodes
// whose parent is outside the list become roots.
func BuildTree(tenants []*database.Tenant) []*TenantNode {
	byID := make(map[uint]*TenantNode, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = &TenantNode{Tenant: t, Children: []*TenantNode{}}
	}

	var roots []*TenantNode
	for _, t := range tenants {
		node := byID[t.ID]
		if t.ParentID != nil {
			if parent, ok := byID[*t.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
