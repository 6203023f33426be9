package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/nexushub/controlplane/internal/apiserver/middleware"
	"github.com/nexushub/controlplane/pkg/metrics"
)

// RegisterRoutes wires every route onto r. The admin surface sits behind JWT
// auth; login and metrics are open.
func (h *Handler) RegisterRoutes(r *gin.Engine, m *metrics.Metrics) {
	r.POST("/api/auth/login", h.Login)

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	admin := r.Group("/api/admin/super")
	admin.Use(middleware.JWTAuthMiddleware(h.jwtService))
	if m != nil {
		admin.Use(m.Middleware())
	}

	// Tenant hierarchy
	admin.GET("/tenants/hierarchy", h.ListTenantHierarchy)
	admin.POST("/tenants", h.CreateTenant)
	admin.GET("/tenants/:id", h.GetTenant)
	admin.PUT("/tenants/:id", h.UpdateTenant)
	admin.DELETE("/tenants/:id", h.DeleteTenant)
	admin.POST("/tenants/:id/move", h.MoveTenant)
	admin.POST("/tenants/:id/toggle-hub", h.ToggleHub)
	admin.POST("/tenants/:id/reactivate", h.ReactivateTenant)

	// Users
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.POST("/users/:id/move-tenant", h.MoveUser)
	admin.POST("/users/:id/move-and-promote", h.MoveUserAndPromote)
	admin.POST("/users/:id/grant-super-admin", h.GrantSuperAdmin)
	admin.POST("/users/:id/revoke-super-admin", h.RevokeSuperAdmin)
	admin.POST("/users/:id/grant-global-super-admin", h.GrantGlobalSuperAdmin)
	admin.POST("/users/:id/revoke-global-super-admin", h.RevokeGlobalSuperAdmin)

	// Bulk operations
	admin.POST("/bulk/move-users", h.BulkMoveUsers)
	admin.POST("/bulk/update-tenants", h.BulkUpdateTenants)

	// Audit log
	admin.GET("/audit", h.QueryAudit)

	// Federation controls
	admin.GET("/federation", h.GetFederationOverview)
	admin.GET("/federation/system-controls", h.GetSystemControls)
	admin.PUT("/federation/system-controls", h.UpdateSystemControls)
	admin.POST("/federation/emergency-lockdown", h.TriggerLockdown)
	admin.POST("/federation/lift-lockdown", h.LiftLockdown)
	admin.GET("/federation/whitelist", h.ListWhitelist)
	admin.POST("/federation/whitelist", h.AddToWhitelist)
	admin.DELETE("/federation/whitelist/:tenantId", h.RemoveFromWhitelist)
	admin.GET("/federation/stats", h.GetFederationStats)
	admin.GET("/federation/tenants/:id/features", h.GetTenantFeatures)
	admin.PUT("/federation/tenants/:id/features", h.SetTenantFeature)

	// Partnerships
	admin.GET("/federation/partnerships", h.ListPartnerships)
	admin.POST("/federation/partnerships", h.CreatePartnership)
	admin.GET("/federation/partnerships/:id", h.GetPartnership)
	admin.POST("/federation/partnerships/:id/activate", h.ActivatePartnership)
	admin.POST("/federation/partnerships/:id/suspend", h.SuspendPartnership)
	admin.POST("/federation/partnerships/:id/reactivate", h.ReactivatePartnership)
	admin.POST("/federation/partnerships/:id/terminate", h.TerminatePartnership)
	admin.PUT("/federation/partnerships/:id/grants", h.UpdatePartnershipGrants)
}
