package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexushub/controlplane/internal/common/dto"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/internal/hierarchy"
)

// ListTenantHierarchy returns the visible portion of the tenant tree, nested.
func (h *Handler) ListTenantHierarchy(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	tenants, err := h.hierarchy.ListTree(c.Request.Context(), scope)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, hierarchy.BuildTree(tenants))
}

// GetTenant returns one tenant inside the caller's scope.
func (h *Handler) GetTenant(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	tenant, err := h.hierarchy.GetTenant(c.Request.Context(), scope, id)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// CreateTenant creates a sub-tenant under an existing hub.
func (h *Handler) CreateTenant(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	tenant, err := h.hierarchy.CreateTenant(c.Request.Context(), scope, hierarchy.CreateTenantInput{
		ParentID:    req.ParentID,
		Name:        req.Name,
		Domain:      req.Domain,
		Description: req.Description,
		IsHub:       req.IsHub,
		MaxSubDepth: req.MaxSubDepth,
		Features:    req.Features,
		Config:      req.Config,
	})
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

// UpdateTenant applies a partial update to a tenant.
func (h *Handler) UpdateTenant(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	tenant, err := h.hierarchy.UpdateTenant(c.Request.Context(), scope, id, hierarchy.UpdateTenantInput{
		Name:        req.Name,
		Domain:      req.Domain,
		Description: req.Description,
		MaxSubDepth: req.MaxSubDepth,
		IsActive:    req.IsActive,
		Features:    req.Features,
		Config:      req.Config,
	})
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// MoveTenant re-parents a tenant subtree.
func (h *Handler) MoveTenant(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.MoveTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	tenant, err := h.hierarchy.MoveTenant(c.Request.Context(), scope, id, req.NewParentID)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// ToggleHub enables or disables the hub capability of a tenant.
func (h *Handler) ToggleHub(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.ToggleHubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	tenant, err := h.hierarchy.ToggleHub(c.Request.Context(), scope, id, req.Enable)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// ReactivateTenant turns a soft-deleted or deactivated tenant back on. The
// parent has to be active for this to succeed.
func (h *Handler) ReactivateTenant(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	active := true
	tenant, err := h.hierarchy.UpdateTenant(c.Request.Context(), scope, id, hierarchy.UpdateTenantInput{
		IsActive: &active,
	})
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// DeleteTenant deactivates a tenant. With hard=true the row is removed for
// good, which additionally requires confirm=<slug> to match the tenant.
func (h *Handler) DeleteTenant(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	hard := c.Query("hard") == "true"
	if hard {
		tenant, err := h.hierarchy.GetTenant(c.Request.Context(), scope, id)
		if err != nil {
			h.errs.HandleError(c, err)
			return
		}
		if confirm := c.Query("confirm"); confirm != tenant.Slug {
			h.errs.HandleError(c, errorx.ValidationError("confirm", confirm,
				"hard delete requires confirm to match the tenant slug"))
			return
		}
	}

	if err := h.hierarchy.DeleteTenant(c.Request.Context(), scope, id, hard); err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id, "hard": hard})
}
