package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/dto"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/internal/federation"
)

// GetFederationOverview returns the system controls together with the
// partnership stats in one response.
func (h *Handler) GetFederationOverview(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	controls, err := h.federation.GetControls(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}
	stats, err := h.federation.GetStats(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"controls": controls,
		"stats":    stats,
	})
}

// GetSystemControls returns the federation system controls singleton.
func (h *Handler) GetSystemControls(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	controls, err := h.federation.GetControls(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, controls)
}

// UpdateSystemControls applies a partial update to the system controls.
func (h *Handler) UpdateSystemControls(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.UpdateControlsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	in := federation.UpdateControlsInput{
		FederationEnabled:  req.FederationEnabled,
		WhitelistMode:      req.WhitelistMode,
		MaxFederationLevel: req.MaxFederationLevel,
	}
	if len(req.Capabilities) > 0 {
		in.Capabilities = make(map[cnst.Capability]bool, len(req.Capabilities))
		for name, enabled := range req.Capabilities {
			in.Capabilities[cnst.Capability(name)] = enabled
		}
	}

	controls, err := h.federation.UpdateControls(c.Request.Context(), scope, in)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, controls)
}

// TriggerLockdown puts federation into emergency lockdown.
func (h *Handler) TriggerLockdown(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.LockdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	controls, err := h.federation.TriggerLockdown(c.Request.Context(), scope, req.Reason)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, controls)
}

// LiftLockdown lifts an active lockdown. Federation stays disabled until an
// operator turns the master switch back on.
func (h *Handler) LiftLockdown(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	controls, err := h.federation.LiftLockdown(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, controls)
}

// ListWhitelist returns every federation whitelist entry.
func (h *Handler) ListWhitelist(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	entries, err := h.federation.ListWhitelist(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// AddToWhitelist puts a tenant on the federation whitelist.
func (h *Handler) AddToWhitelist(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.WhitelistAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	entry, err := h.federation.AddToWhitelist(c.Request.Context(), scope, req.TenantID, req.Reason)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// RemoveFromWhitelist drops a tenant from the federation whitelist.
func (h *Handler) RemoveFromWhitelist(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	tenantID, ok := h.pathID(c, "tenantId")
	if !ok {
		return
	}

	if err := h.federation.RemoveFromWhitelist(c.Request.Context(), scope, tenantID); err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": tenantID})
}

// GetTenantFeatures returns the effective capability set of a tenant, with
// system controls and per-tenant overrides folded in.
func (h *Handler) GetTenantFeatures(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	// Scope check rides on the tenant read.
	if _, err := h.hierarchy.GetTenant(c.Request.Context(), scope, id); err != nil {
		h.errs.HandleError(c, err)
		return
	}

	caps, err := h.federation.TenantCapabilities(c.Request.Context(), id)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, caps)
}

// SetTenantFeature sets a per-tenant capability override.
func (h *Handler) SetTenantFeature(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.TenantFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	override, err := h.federation.SetTenantFeature(c.Request.Context(), scope, id,
		cnst.Capability(req.Capability), *req.Enabled)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, override)
}

// CreatePartnership opens a pending partnership between two tenants.
func (h *Handler) CreatePartnership(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.CreatePartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	p, err := h.federation.CreatePartnership(c.Request.Context(), scope, federation.CreatePartnershipInput{
		RequesterTenantID: req.RequesterTenantID,
		PartnerTenantID:   req.PartnerTenantID,
		Level:             req.Level,
		Message:           req.Message,
		Permissions:       database.JSONMap(req.Permissions),
	})
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

// ListPartnerships returns the partnerships a tenant is involved in. With no
// tenantId query parameter the caller's home tenant is used.
func (h *Handler) ListPartnerships(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	tenantID := scope.Tenant.ID
	if raw := c.Query("tenantId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			h.errs.HandleError(c, errorx.ValidationError("tenantId", raw, "must be a positive integer"))
			return
		}
		tenantID = uint(id)
	}

	partnerships, err := h.federation.ListPartnerships(c.Request.Context(), scope, tenantID)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, partnerships)
}

// GetPartnership returns one partnership visible to the caller.
func (h *Handler) GetPartnership(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.federation.GetPartnership(c.Request.Context(), scope, id)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// ActivatePartnership approves a pending partnership from the partner side.
func (h *Handler) ActivatePartnership(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.federation.ActivatePartnership(c.Request.Context(), scope, id)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// SuspendPartnership pauses an active partnership.
func (h *Handler) SuspendPartnership(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	// The reason is optional, so an empty body is fine.
	var req dto.SuspendPartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	p, err := h.federation.SuspendPartnership(c.Request.Context(), scope, id, req.Reason)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// ReactivatePartnership resumes a suspended partnership.
func (h *Handler) ReactivatePartnership(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.federation.ReactivatePartnership(c.Request.Context(), scope, id)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// TerminatePartnership ends a partnership for good.
func (h *Handler) TerminatePartnership(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.federation.TerminatePartnership(c.Request.Context(), scope, id)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// UpdatePartnershipGrants replaces the permission grants of a partnership.
func (h *Handler) UpdatePartnershipGrants(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.PartnershipGrantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	p, err := h.federation.UpdatePartnershipGrants(c.Request.Context(), scope, id,
		database.JSONMap(req.Permissions))
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// GetFederationStats summarizes the partnership population.
func (h *Handler) GetFederationStats(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	stats, err := h.federation.GetStats(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
