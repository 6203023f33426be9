package federation

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

// GetControls returns the current federation system controls.
func (s *Service) GetControls(ctx context.Context, scope *access.Scope) (*database.FederationSystemControls, error) {
	if err := s.requireControlsScope(scope, "view federation controls"); err != nil {
		return nil, err
	}
	return s.controls(ctx)
}

// UpdateControlsInput carries only the fields the caller wants to change.
// Lockdown state is deliberately absent: it moves through TriggerLockdown and
// LiftLockdown only.
type UpdateControlsInput struct {
	FederationEnabled  *bool
	Capabilities       map[cnst.Capability]bool
	WhitelistMode      *bool
	MaxFederationLevel *int
}

// UpdateControls applies a partial update to the system controls and records
// a single audit entry listing every field that changed.
func (s *Service) UpdateControls(ctx context.Context, scope *access.Scope, in UpdateControlsInput) (*database.FederationSystemControls, error) {
	if err := s.requireControlsScope(scope, "update federation controls"); err != nil {
		return nil, err
	}
	for capability := range in.Capabilities {
		if !capability.IsValid() {
			return nil, errorx.ValidationError("capability", string(capability), "unknown capability")
		}
	}
	if in.MaxFederationLevel != nil {
		if lvl := *in.MaxFederationLevel; lvl < 0 || lvl > cnst.MaxFederationLevel {
			return nil, errorx.ValidationError("max_federation_level", lvl, "must be between 0 and 4")
		}
	}

	var controls *database.FederationSystemControls
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		controls, err = s.db.GetSystemControlsForUpdate(txCtx)
		if err != nil {
			return errorx.ErrDatabaseError
		}

		changed := map[string]any{}
		if in.FederationEnabled != nil && controls.FederationEnabled != *in.FederationEnabled {
			if *in.FederationEnabled && controls.LockdownActive {
				return errorx.InvariantError("federation cannot be enabled while a lockdown is active")
			}
			controls.FederationEnabled = *in.FederationEnabled
			changed["federation_enabled"] = *in.FederationEnabled
		}
		for capability, enabled := range in.Capabilities {
			if controls.CapabilityEnabled(capability) == enabled {
				continue
			}
			controls.SetCapability(capability, enabled)
			changed[string(capability)+"_enabled"] = enabled
		}
		if in.WhitelistMode != nil && controls.WhitelistMode != *in.WhitelistMode {
			controls.WhitelistMode = *in.WhitelistMode
			changed["whitelist_mode"] = *in.WhitelistMode
		}
		if in.MaxFederationLevel != nil && controls.MaxFederationLevel != *in.MaxFederationLevel {
			controls.MaxFederationLevel = *in.MaxFederationLevel
			changed["max_federation_level"] = *in.MaxFederationLevel
		}
		if len(changed) == 0 {
			return nil
		}

		controls.UpdatedBy = scope.User.ID
		if err := s.db.SaveSystemControls(txCtx, controls); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionSystemControlsUpdated,
			TargetType: cnst.TargetFederation,
			Level:      cnst.LevelWarning,
			Data:       map[string]any{"changes": changed},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionSystemControlsUpdated, "error")
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.mutationDone(cnst.ActionSystemControlsUpdated, "ok")
	return controls, nil
}

// TriggerLockdown halts all federation activity at once. The flag, its
// metadata and the audit entry commit together.
func (s *Service) TriggerLockdown(ctx context.Context, scope *access.Scope, reason string) (*database.FederationSystemControls, error) {
	if err := s.requireControlsScope(scope, "trigger federation lockdown"); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errorx.ValidationError("reason", reason, "lockdown requires a reason")
	}

	var controls *database.FederationSystemControls
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		controls, err = s.db.GetSystemControlsForUpdate(txCtx)
		if err != nil {
			return errorx.ErrDatabaseError
		}
		if controls.LockdownActive {
			return errorx.ConflictError("federation_lockdown", "active", true)
		}

		// lockdown force-disables the master switch; lifting it later does
		// not re-enable federation, an operator has to do that explicitly
		now := time.Now()
		controls.LockdownActive = true
		controls.FederationEnabled = false
		controls.LockdownReason = reason
		controls.LockdownBy = scope.User.ID
		controls.LockdownAt = &now
		controls.UpdatedBy = scope.User.ID
		if err := s.db.SaveSystemControls(txCtx, controls); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionLockdownTriggered,
			TargetType:  cnst.TargetFederation,
			Level:       cnst.LevelCritical,
			Description: "lockdown: " + reason,
			Data:        map[string]any{"reason": reason},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionLockdownTriggered, "error")
		return nil, err
	}

	s.cache.Invalidate(ctx)
	if s.metrics != nil {
		s.metrics.SetLockdown(true)
	}
	s.mutationDone(cnst.ActionLockdownTriggered, "ok")
	s.logger.Warn("federation lockdown triggered",
		zap.Uint("by", scope.User.ID),
		zap.String("reason", reason))
	return controls, nil
}

// LiftLockdown restores federation after a lockdown.
func (s *Service) LiftLockdown(ctx context.Context, scope *access.Scope) (*database.FederationSystemControls, error) {
	if err := s.requireControlsScope(scope, "lift federation lockdown"); err != nil {
		return nil, err
	}

	var controls *database.FederationSystemControls
	err := s.db.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		controls, err = s.db.GetSystemControlsForUpdate(txCtx)
		if err != nil {
			return errorx.ErrDatabaseError
		}
		if !controls.LockdownActive {
			return errorx.ConflictError("federation_lockdown", "active", false)
		}

		previousReason := controls.LockdownReason
		controls.LockdownActive = false
		controls.LockdownReason = ""
		controls.LockdownBy = 0
		controls.LockdownAt = nil
		controls.UpdatedBy = scope.User.ID
		if err := s.db.SaveSystemControls(txCtx, controls); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionLockdownLifted,
			TargetType: cnst.TargetFederation,
			Level:      cnst.LevelCritical,
			Data:       map[string]any{"previous_reason": previousReason},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionLockdownLifted, "error")
		return nil, err
	}

	s.cache.Invalidate(ctx)
	if s.metrics != nil {
		s.metrics.SetLockdown(false)
	}
	s.mutationDone(cnst.ActionLockdownLifted, "ok")
	s.logger.Info("federation lockdown lifted", zap.Uint("by", scope.User.ID))
	return controls, nil
}

// ListWhitelist returns all whitelist entries.
func (s *Service) ListWhitelist(ctx context.Context, scope *access.Scope) ([]*database.WhitelistEntry, error) {
	if err := s.requireControlsScope(scope, "view federation whitelist"); err != nil {
		return nil, err
	}
	return s.db.ListWhitelist(ctx)
}

// AddToWhitelist marks a tenant as allowed to federate while whitelist mode
// is on. Adding is idempotent only in effect, not in API: duplicates are a
// conflict so callers notice stale state.
func (s *Service) AddToWhitelist(ctx context.Context, scope *access.Scope, tenantID uint, reason string) (*database.WhitelistEntry, error) {
	if err := s.requireControlsScope(scope, "modify federation whitelist"); err != nil {
		return nil, err
	}
	tenant, err := s.db.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", tenantID)
	}
	if tenant.IsMaster() {
		return nil, errorx.ErrInvalidInput.WithDetail("reason", "the master hub is always allowed to federate")
	}
	existing, err := s.db.GetWhitelistEntry(ctx, tenantID)
	if err != nil {
		return nil, errorx.ErrDatabaseError
	}
	if existing != nil {
		return nil, errorx.ConflictError("whitelist_entry", "tenant_id", tenantID)
	}

	entry := &database.WhitelistEntry{
		TenantID: tenantID,
		AddedBy:  scope.User.ID,
		Reason:   reason,
	}
	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.db.CreateWhitelistEntry(txCtx, entry); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionTenantWhitelisted,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenantID,
			TargetLabel: tenant.Name,
			Data:        map[string]any{"reason": reason},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantWhitelisted, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionTenantWhitelisted, "ok")
	return entry, nil
}

// RemoveFromWhitelist takes a tenant off the federation whitelist.
func (s *Service) RemoveFromWhitelist(ctx context.Context, scope *access.Scope, tenantID uint) error {
	if err := s.requireControlsScope(scope, "modify federation whitelist"); err != nil {
		return err
	}
	existing, err := s.db.GetWhitelistEntry(ctx, tenantID)
	if err != nil {
		return errorx.ErrDatabaseError
	}
	if existing == nil {
		return errorx.NotFoundError("whitelist entry", tenantID)
	}

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.db.DeleteWhitelistEntry(txCtx, tenantID); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:     cnst.ActionTenantUnwhitelisted,
			TargetType: cnst.TargetTenant,
			TargetID:   tenantID,
			Level:      cnst.LevelWarning,
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantUnwhitelisted, "error")
		return err
	}
	s.mutationDone(cnst.ActionTenantUnwhitelisted, "ok")
	return nil
}

// SetTenantFeature sets or updates a per-tenant capability override.
func (s *Service) SetTenantFeature(ctx context.Context, scope *access.Scope, tenantID uint, capability cnst.Capability, enabled bool) (*database.TenantFeatureOverride, error) {
	if err := s.requireControlsScope(scope, "set tenant feature override"); err != nil {
		return nil, err
	}
	if !capability.IsValid() {
		return nil, errorx.ValidationError("capability", string(capability), "unknown capability")
	}
	tenant, err := s.db.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", tenantID)
	}

	override, err := s.db.GetTenantOverride(ctx, tenantID, string(capability))
	if err != nil {
		return nil, errorx.ErrDatabaseError
	}
	if override == nil {
		override = &database.TenantFeatureOverride{
			TenantID:   tenantID,
			Capability: string(capability),
		}
	} else if override.Enabled == enabled {
		return override, nil
	}
	override.Enabled = enabled
	override.UpdatedBy = scope.User.ID

	err = s.db.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.db.SaveTenantOverride(txCtx, override); err != nil {
			return errorx.ErrDatabaseError
		}
		return s.audit.Append(txCtx, actorOf(scope), audit.Record{
			Action:      cnst.ActionTenantFeatureChanged,
			TargetType:  cnst.TargetTenant,
			TargetID:    tenantID,
			TargetLabel: tenant.Name,
			Level:       cnst.LevelWarning,
			Data: map[string]any{
				"capability": string(capability),
				"enabled":    enabled,
			},
		})
	})
	if err != nil {
		s.mutationDone(cnst.ActionTenantFeatureChanged, "error")
		return nil, err
	}
	s.mutationDone(cnst.ActionTenantFeatureChanged, "ok")
	return override, nil
}

// TenantCapabilities resolves the effective capability set for a tenant under
// the current controls and its own overrides.
func (s *Service) TenantCapabilities(ctx context.Context, tenantID uint) (map[cnst.Capability]bool, error) {
	if _, err := s.db.GetTenantByID(ctx, tenantID); err != nil {
		return nil, errorx.NotFoundError("tenant", tenantID)
	}
	controls, err := s.controls(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.db.ListTenantOverrides(ctx, tenantID)
	if err != nil {
		return nil, errorx.ErrDatabaseError
	}
	byCapability := make(map[string]*database.TenantFeatureOverride, len(overrides))
	for _, o := range overrides {
		byCapability[o.Capability] = o
	}

	result := make(map[cnst.Capability]bool, len(cnst.Capabilities))
	for _, capability := range cnst.Capabilities {
		result[capability] = EffectiveCapability(controls, byCapability[string(capability)], capability)
	}
	return result, nil
}
