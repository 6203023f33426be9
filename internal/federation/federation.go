package federation

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

// Service owns the federation-wide switchboard (system controls, lockdown,
// whitelist, per-tenant capability overrides) and the partnership lifecycle
// between tenants.
type Service struct {
	db      database.Database
	access  *access.Service
	audit   *audit.Service
	cache   ControlsCache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(db database.Database, accessSvc *access.Service, auditSvc *audit.Service, cache ControlsCache, logger *zap.Logger, m *metrics.Metrics) *Service {
	if cache == nil {
		cache = newMemoryCache(0)
	}
	return &Service{
		db:      db,
		access:  accessSvc,
		audit:   auditSvc,
		cache:   cache,
		logger:  logger.Named("federation"),
		metrics: m,
	}
}

func actorOf(scope *access.Scope) audit.Actor {
	return audit.Actor{ID: scope.User.ID, Username: scope.User.Username}
}

func (s *Service) mutationDone(action, status string) {
	if s.metrics != nil {
		s.metrics.MutationDone(action, status)
	}
}

func (s *Service) scopeDenied(operation string) {
	if s.metrics != nil {
		s.metrics.ScopeDenied(operation)
	}
}

// requireControlsScope gates operations on the federation switchboard itself.
// Only operators at the master hub (or above) may touch it.
func (s *Service) requireControlsScope(scope *access.Scope, operation string) error {
	if scope.Level == access.LevelGod || scope.Level == access.LevelMasterHubAdmin {
		return nil
	}
	s.scopeDenied(operation)
	return errorx.ScopeDeniedError(operation, "federation system controls require master hub authority")
}

// EffectiveCapability resolves whether a capability is usable for a tenant
// right now: lockdown wins over everything, then the system switch, then the
// tenant's own override. Absent override means inherit.
func EffectiveCapability(controls *database.FederationSystemControls, override *database.TenantFeatureOverride, capability cnst.Capability) bool {
	if controls.LockdownActive || !controls.FederationEnabled {
		return false
	}
	if !controls.CapabilityEnabled(capability) {
		return false
	}
	if override != nil && !override.Enabled {
		return false
	}
	return true
}

// controls returns the current snapshot, serving from cache when possible.
func (s *Service) controls(ctx context.Context) (*database.FederationSystemControls, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	controls, err := s.db.GetSystemControls(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, controls)
	return controls, nil
}

// CanFederate answers whether a tenant may participate in federation at all
// under the current controls. The reason is empty when allowed.
func (s *Service) CanFederate(ctx context.Context, tenant *database.Tenant) (bool, string, error) {
	if !tenant.IsActive {
		return false, fmt.Sprintf("tenant %d is inactive", tenant.ID), nil
	}
	controls, err := s.controls(ctx)
	if err != nil {
		return false, "", err
	}
	if controls.LockdownActive {
		return false, "federation is under emergency lockdown", nil
	}
	if !controls.FederationEnabled {
		return false, "federation is disabled system-wide", nil
	}
	if controls.WhitelistMode && !tenant.IsMaster() {
		entry, err := s.db.GetWhitelistEntry(ctx, tenant.ID)
		if err != nil {
			return false, "", err
		}
		if entry == nil {
			return false, fmt.Sprintf("tenant %d is not on the federation whitelist", tenant.ID), nil
		}
	}
	return true, "", nil
}

// defaultGrants returns the permission set a partnership starts with at a
// given level. Higher levels are supersets of lower ones.
func defaultGrants(level int) database.JSONMap {
	grants := database.JSONMap{}
	if level >= cnst.LevelDiscovery {
		grants["profiles.view"] = true
		grants["directory.listed"] = true
	}
	if level >= cnst.LevelSocial {
		grants["messaging.send"] = true
		grants["profiles.follow"] = true
	}
	if level >= cnst.LevelEconomic {
		grants["transactions.initiate"] = true
		grants["listings.browse"] = true
	}
	if level >= cnst.LevelIntegrated {
		grants["events.join"] = true
		grants["groups.join"] = true
	}
	return grants
}
