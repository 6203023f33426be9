package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/errorx"
)

// Partnership status transitions. Terminated is absorbing: nothing leaves it.
var partnershipTransitions = map[string][]string{
	cnst.PartnershipPending:   {cnst.PartnershipActive, cnst.PartnershipTerminated},
	cnst.PartnershipActive:    {cnst.PartnershipSuspended, cnst.PartnershipTerminated},
	cnst.PartnershipSuspended: {cnst.PartnershipActive, cnst.PartnershipTerminated},
}

func canTransition(from, to string) bool {
	for _, next := range partnershipTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(p *database.Partnership, to string) *errorx.APIError {
	return errorx.ErrInvalidTransition.
		WithDetail("partnership_id", p.ID).
		WithDetail("from", p.Status).
		WithDetail("to", to)
}

// requirePartyScope checks that the scope administers at least one side of
// the partnership and returns both tenants.
func (s *Service) requirePartyScope(ctx context.Context, scope *access.Scope, p *database.Partnership, operation string) (requester, partner *database.Tenant, err error) {
	requester, err = s.db.GetTenantByID(ctx, p.RequesterTenantID)
	if err != nil {
		return nil, nil, errorx.NotFoundError("tenant", p.RequesterTenantID)
	}
	partner, err = s.db.GetTenantByID(ctx, p.PartnerTenantID)
	if err != nil {
		return nil, nil, errorx.NotFoundError("tenant", p.PartnerTenantID)
	}
	if ok, _ := s.access.CanManageTenant(scope, requester); ok {
		return requester, partner, nil
	}
	if ok, _ := s.access.CanManageTenant(scope, partner); ok {
		return requester, partner, nil
	}
	s.scopeDenied(operation)
	return nil, nil, errorx.ScopeDeniedError(operation, "scope administers neither side of the partnership")
}

// CreatePartnershipInput describes a new partnership request.
type CreatePartnershipInput struct {
	RequesterTenantID uint
	PartnerTenantID   uint
	Level             int
	Message           string
	Permissions       database.JSONMap
}

// CreatePartnership opens a pending partnership between two tenants. The
// requesting side must be managed by the caller; the partner side approves
// later via ActivatePartnership.
func (s *Service) CreatePartnership(ctx context.Context, scope *access.Scope, in CreatePartnershipInput) (*database.Partnership, error) {
	if in.RequesterTenantID == in.PartnerTenantID {
		return nil, errorx.ValidationError("partner_tenant_id", in.PartnerTenantID, "a tenant cannot partner with itself")
	}

	requester, err := s.access.RequireManage(ctx, scope, in.RequesterTenantID)
	if err != nil {
		s.scopeDenied("create partnership")
		return nil, err
	}
	partner, err := s.db.GetTenantByID(ctx, in.PartnerTenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", in.PartnerTenantID)
	}

	controls, err := s.controls(ctx)
	if err != nil {
		return nil, err
	}
	if in.Level < cnst.LevelDiscovery || in.Level > cnst.MaxFederationLevel {
		return nil, errorx.ValidationError("level", in.Level, "must be between 1 and 4")
	}
	if in.Level > controls.MaxFederationLevel {
		return nil, errorx.InvariantError(fmt.Sprintf(
			"requested level %s exceeds the system ceiling %s",
			cnst.LevelName(in.Level), cnst.LevelName(controls.MaxFederationLevel)))
	}

	for _, tenant := range []*database.Tenant{requester, partner} {
		ok, reason, err := s.CanFederate(ctx, tenant)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errorx.InvariantError(reason)
		}
	}

	existing, err := s.db.FindPartnershipBetween(ctx, requester.ID, partner.ID)
	if err != nil {
		return nil, errorx.ErrDatabaseError
	}
	if existing != nil {
		return nil, errorx.ConflictError("partnership", "between", fmt.Sprintf("%d/%d", requester.ID, partner.ID)).
			WithDetail("existing_id", existing.ID).
			WithDetail("existing_status", existing.Status)
	}

	permissions := in.Permissions
	if len(permissions) == 0 {
		permissions = defaultGrants(in.Level)
	}
	partnership := &database.Partnership{
		RequesterTenantID: requester.ID,
		PartnerTenantID:   partner.ID,
		Status:            cnst.PartnershipPending,
		Level:             in.Level,
		Permissions:       permissions,
		Message:           in.Message,
		InitiatedBy:       scope.User.ID,
	}
	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.db.CreatePartnership(txCtx, partnership); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionPartnershipCreated,
			TargetType:  cnst.TargetPartnership,
			TargetID:    partnership.ID,
			TargetLabel: fmt.Sprintf("%s <-> %s", requester.Name, partner.Name),
			Data: map[string]any{
				"requester_tenant_id": requester.ID,
				"partner_tenant_id":   partner.ID,
				"level":               in.Level,
				"level_name":          cnst.LevelName(in.Level),
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionPartnershipCreated, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionPartnershipCreated, "ok")
	return partnership, nil
}

// ActivatePartnership approves a pending partnership. Only an administrator
// of the partner side (or above) can approve.
func (s *Service) ActivatePartnership(ctx context.Context, scope *access.Scope, id uint) (*database.Partnership, error) {
	var partnership *database.Partnership
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		partnership, err = s.db.GetPartnershipByIDForUpdate(txCtx, id)
		if err != nil {
			return errorx.NotFoundError("partnership", id)
		}
		partner, err := s.db.GetTenantByID(txCtx, partnership.PartnerTenantID)
		if err != nil {
			return errorx.NotFoundError("tenant", partnership.PartnerTenantID)
		}
		if ok, reason := s.access.CanManageTenant(scope, partner); !ok {
			s.scopeDenied("activate partnership")
			return errorx.ScopeDeniedError("activate partnership", reason)
		}
		if partnership.Status != cnst.PartnershipPending {
			return transitionError(partnership, cnst.PartnershipActive)
		}

		ok, reason, err := s.CanFederate(txCtx, partner)
		if err != nil {
			return err
		}
		if !ok {
			return errorx.InvariantError(reason)
		}

		now := time.Now()
		partnership.Status = cnst.PartnershipActive
		partnership.ApprovedBy = &scope.User.ID
		partnership.ActivatedAt = &now
		if err := s.db.UpdatePartnership(txCtx, partnership); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionPartnershipActivated,
			TargetType: cnst.TargetPartnership,
			TargetID:   partnership.ID,
			Data: map[string]any{
				"requester_tenant_id": partnership.RequesterTenantID,
				"partner_tenant_id":   partnership.PartnerTenantID,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionPartnershipActivated, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionPartnershipActivated, "ok")
	return partnership, nil
}

// SuspendPartnership pauses an active partnership. Either side can suspend.
func (s *Service) SuspendPartnership(ctx context.Context, scope *access.Scope, id uint, reason string) (*database.Partnership, error) {
	var partnership *database.Partnership
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		partnership, err = s.db.GetPartnershipByIDForUpdate(txCtx, id)
		if err != nil {
			return errorx.NotFoundError("partnership", id)
		}
		if _, _, err := s.requirePartyScope(txCtx, scope, partnership, "suspend partnership"); err != nil {
			return err
		}
		if partnership.Status != cnst.PartnershipActive {
			return transitionError(partnership, cnst.PartnershipSuspended)
		}

		now := time.Now()
		partnership.Status = cnst.PartnershipSuspended
		partnership.SuspendedReason = reason
		partnership.SuspendedAt = &now
		if err := s.db.UpdatePartnership(txCtx, partnership); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionPartnershipSuspended,
			TargetType: cnst.TargetPartnership,
			TargetID:   partnership.ID,
			Level:      cnst.LevelWarning,
			Data:       map[string]any{"reason": reason},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionPartnershipSuspended, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionPartnershipSuspended, "ok")
	return partnership, nil
}

// ReactivatePartnership resumes a suspended partnership.
func (s *Service) ReactivatePartnership(ctx context.Context, scope *access.Scope, id uint) (*database.Partnership, error) {
	var partnership *database.Partnership
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		partnership, err = s.db.GetPartnershipByIDForUpdate(txCtx, id)
		if err != nil {
			return errorx.NotFoundError("partnership", id)
		}
		if _, _, err := s.requirePartyScope(txCtx, scope, partnership, "reactivate partnership"); err != nil {
			return err
		}
		if partnership.Status != cnst.PartnershipSuspended {
			return transitionError(partnership, cnst.PartnershipActive)
		}

		now := time.Now()
		partnership.Status = cnst.PartnershipActive
		partnership.SuspendedReason = ""
		partnership.SuspendedAt = nil
		partnership.ActivatedAt = &now
		if err := s.db.UpdatePartnership(txCtx, partnership); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionPartnershipReactivated,
			TargetType: cnst.TargetPartnership,
			TargetID:   partnership.ID,
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionPartnershipReactivated, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionPartnershipReactivated, "ok")
	return partnership, nil
}

// TerminatePartnership ends a partnership permanently. Terminated
// partnerships never come back; a new one must be created instead.
func (s *Service) TerminatePartnership(ctx context.Context, scope *access.Scope, id uint) (*database.Partnership, error) {
	var partnership *database.Partnership
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		partnership, err = s.db.GetPartnershipByIDForUpdate(txCtx, id)
		if err != nil {
			return errorx.NotFoundError("partnership", id)
		}
		if _, _, err := s.requirePartyScope(txCtx, scope, partnership, "terminate partnership"); err != nil {
			return err
		}
		if !canTransition(partnership.Status, cnst.PartnershipTerminated) {
			return transitionError(partnership, cnst.PartnershipTerminated)
		}

		previous := partnership.Status
		now := time.Now()
		partnership.Status = cnst.PartnershipTerminated
		partnership.TerminatedAt = &now
		if err := s.db.UpdatePartnership(txCtx, partnership); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionPartnershipTerminated,
			TargetType: cnst.TargetPartnership,
			TargetID:   partnership.ID,
			Level:      cnst.LevelWarning,
			Data:       map[string]any{"previous_status": previous},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionPartnershipTerminated, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionPartnershipTerminated, "ok")
	return partnership, nil
}

// UpdatePartnershipGrants replaces the permission grants on a pending or
// active partnership.
func (s *Service) UpdatePartnershipGrants(ctx context.Context, scope *access.Scope, id uint, permissions database.JSONMap) (*database.Partnership, error) {
	if len(permissions) == 0 {
		return nil, errorx.ValidationError("permissions", permissions, "grants cannot be empty")
	}

	var partnership *database.Partnership
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		partnership, err = s.db.GetPartnershipByIDForUpdate(txCtx, id)
		if err != nil {
			return errorx.NotFoundError("partnership", id)
		}
		if _, _, err := s.requirePartyScope(txCtx, scope, partnership, "update partnership grants"); err != nil {
			return err
		}
		if partnership.Status != cnst.PartnershipPending && partnership.Status != cnst.PartnershipActive {
			return errorx.InvariantError(fmt.Sprintf("grants cannot change while partnership is %s", partnership.Status))
		}

		previous := partnership.Permissions
		partnership.Permissions = permissions
		if err := s.db.UpdatePartnership(txCtx, partnership); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionPartnershipGrants,
			TargetType: cnst.TargetPartnership,
			TargetID:   partnership.ID,
			Data: map[string]any{
				"previous": map[string]any(previous),
				"current":  map[string]any(permissions),
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionPartnershipGrants, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionPartnershipGrants, "ok")
	return partnership, nil
}

// GetPartnership loads a partnership visible to the scope.
func (s *Service) GetPartnership(ctx context.Context, scope *access.Scope, id uint) (*database.Partnership, error) {
	partnership, err := s.db.GetPartnershipByID(ctx, id)
	if err != nil {
		return nil, errorx.NotFoundError("partnership", id)
	}
	if _, _, err := s.requirePartyScope(ctx, scope, partnership, "view partnership"); err != nil {
		return nil, err
	}
	return partnership, nil
}

// ListPartnerships returns every partnership a tenant is involved in, on
// either side.
func (s *Service) ListPartnerships(ctx context.Context, scope *access.Scope, tenantID uint) ([]*database.Partnership, error) {
	tenant, err := s.db.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", tenantID)
	}
	if ok, reason := s.access.CanAccessTenant(scope, tenant); !ok {
		s.scopeDenied("list partnerships")
		return nil, errorx.ScopeDeniedError("list partnerships", reason)
	}
	return s.db.ListPartnershipsByTenant(ctx, tenantID)
}

// Stats summarizes the partnership population. EffectiveActive counts active
// partnerships whose both parties can actually federate under the current
// controls; the gating is evaluated lazily at read time, so a lockdown drops
// it to zero without touching any partnership row.
type Stats struct {
	ByStatus        map[string]int64 `json:"byStatus"`
	EffectiveActive int64            `json:"effectiveActive"`
	LockdownActive  bool             `json:"lockdownActive"`
	WhitelistMode   bool             `json:"whitelistMode"`
}

// GetStats computes partnership statistics under the current controls.
func (s *Service) GetStats(ctx context.Context, scope *access.Scope) (*Stats, error) {
	if err := s.requireControlsScope(scope, "view federation stats"); err != nil {
		return nil, err
	}
	byStatus, err := s.db.CountPartnershipsByStatus(ctx)
	if err != nil {
		return nil, errorx.ErrDatabaseError
	}
	controls, err := s.controls(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus:       byStatus,
		LockdownActive: controls.LockdownActive,
		WhitelistMode:  controls.WhitelistMode,
	}
	if controls.LockdownActive {
		return stats, nil
	}

	active, err := s.db.ListPartnershipsByStatus(ctx, cnst.PartnershipActive)
	if err != nil {
		return nil, errorx.ErrDatabaseError
	}
	federable := map[uint]bool{}
	for _, p := range active {
		effective := true
		for _, tenantID := range []uint{p.RequesterTenantID, p.PartnerTenantID} {
			allowed, known := federable[tenantID]
			if !known {
				tenant, err := s.db.GetTenantByID(ctx, tenantID)
				if err != nil {
					allowed = false
				} else if allowed, _, err = s.CanFederate(ctx, tenant); err != nil {
					return nil, err
				}
				federable[tenantID] = allowed
			}
			if !allowed {
				effective = false
			}
		}
		if effective {
			stats.EffectiveActive++
		}
	}
	return stats, nil
}
