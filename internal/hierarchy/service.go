// Package hierarchy implements tenant tree management: creation, updates,
// moves, deletion, hub toggling and the admin grants that ride on the tree.
package hierarchy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/pkg/metrics"

	"go.uber.org/zap"
)

// ContentRelocator moves the content a user owns from one tenant to another.
// User moves call it inside the same transaction as the tenant_id flip, so a
// relocation failure rolls the whole move back.
type ContentRelocator interface {
	RelocateUserContent(ctx context.Context, userID, fromTenantID, toTenantID uint) error
}

// Service mutates the tenant hierarchy. Every mutation and its audit entry
// commit in one transaction.
type Service struct {
	db        database.Database
	access    *access.Service
	audit     *audit.Service
	relocator ContentRelocator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewService creates a new hierarchy service. metrics may be nil.
func NewService(db database.Database, accessSvc *access.Service, auditSvc *audit.Service, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		db:      db,
		access:  accessSvc,
		audit:   auditSvc,
		logger:  logger.Named("hierarchy"),
		metrics: m,
	}
}

// SetContentRelocator installs the collaborator that carries a user's owned
// content along on moves. Without one, moves only re-home the account.
func (s *Service) SetContentRelocator(r ContentRelocator) {
	s.relocator = r
}

func actorOf(scope *access.Scope) audit.Actor {
	return audit.Actor{ID: scope.User.ID, Username: scope.User.Username}
}

// parsePathIDs turns "/1/4/9/" into [1 4 9].
func parsePathIDs(path string) []uint {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(n))
	}
	return ids
}

// loadAncestors returns the chain from the root down to and including the
// given tenant.
func (s *Service) loadAncestors(ctx context.Context, tenant *database.Tenant) ([]*database.Tenant, error) {
	ids := parsePathIDs(tenant.Path)
	chain := make([]*database.Tenant, 0, len(ids))
	for _, id := range ids {
		if id == tenant.ID {
			chain = append(chain, tenant)
			continue
		}
		anc, err := s.db.GetTenantByID(ctx, id)
		if err != nil {
			return nil, errorx.NotFoundError("tenant", id)
		}
		chain = append(chain, anc)
	}
	return chain, nil
}

// checkDepthBudget verifies that placing nodes down to deepestDepth under the
// given parent stays within every ancestor's sub-depth limit. Only the root
// tenant nests without a limit.
func (s *Service) checkDepthBudget(ctx context.Context, parent *database.Tenant, deepestDepth int) error {
	chain, err := s.loadAncestors(ctx, parent)
	if err != nil {
		return err
	}
	for _, anc := range chain {
		if anc.IsMaster() {
			continue
		}
		if deepestDepth-anc.Depth > anc.MaxSubDepth {
			return errorx.ErrDepthExceeded.
				WithDetail("limited_by", anc.ID).
				WithDetail("max_sub_depth", anc.MaxSubDepth).
				WithDetail("required_depth", deepestDepth-anc.Depth)
		}
	}
	return nil
}

func (s *Service) mutationDone(action, status string) {
	if s.metrics != nil {
		s.metrics.MutationDone(action, status)
	}
}

// ListTree returns every tenant the scope can see, ordered by path so parents
// precede children.
func (s *Service) ListTree(ctx context.Context, scope *access.Scope) ([]*database.Tenant, error) {
	if scope.IsGod() {
		return s.db.ListSubtree(ctx, access.MasterSubtreePath())
	}
	return s.db.ListSubtree(ctx, scope.Tenant.Path)
}

// GetTenant loads a tenant the scope can at least view.
func (s *Service) GetTenant(ctx context.Context, scope *access.Scope, id uint) (*database.Tenant, error) {
	tenant, err := s.db.GetTenantByID(ctx, id)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", id)
	}
	if ok, reason := s.access.CanAccessTenant(scope, tenant); !ok {
		s.scopeDenied("get tenant")
		return nil, errorx.ScopeDeniedError(fmt.Sprintf("view tenant %d", id), reason)
	}
	return tenant, nil
}

// ListUsers returns every user of a tenant the scope can at least view. A
// zero tenantID asks for all users across all tenants, which only a global
// super admin may do.
func (s *Service) ListUsers(ctx context.Context, scope *access.Scope, tenantID uint) ([]*database.User, error) {
	if tenantID == 0 {
		if !scope.IsGod() {
			s.scopeDenied("list users")
			return nil, errorx.ScopeDeniedError("list all users", "requires a global super admin")
		}
		return s.db.ListUsers(ctx)
	}
	tenant, err := s.db.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, errorx.NotFoundError("tenant", tenantID)
	}
	if ok, reason := s.access.CanAccessTenant(scope, tenant); !ok {
		s.scopeDenied("list users")
		return nil, errorx.ScopeDeniedError(fmt.Sprintf("list users of tenant %d", tenantID), reason)
	}
	return s.db.ListUsersByTenant(ctx, tenantID)
}

func (s *Service) scopeDenied(operation string) {
	if s.metrics != nil {
		s.metrics.ScopeDenied(operation)
	}
}
