package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexushub/controlplane/internal/bulkops"
	"github.com/nexushub/controlplane/internal/common/dto"
	"github.com/nexushub/controlplane/internal/common/errorx"
)

// BulkMoveUsers moves a batch of users to one destination tenant. Partial
// failures come back as a 207-style result body, not an error.
func (h *Handler) BulkMoveUsers(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.BulkMoveUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	result, err := h.bulk.MoveUsers(c.Request.Context(), scope, req.UserIDs, req.DestTenantID, req.GrantSuperAdmin)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BulkUpdateTenants applies one patch to a batch of tenants.
func (h *Handler) BulkUpdateTenants(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.BulkUpdateTenantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	result, err := h.bulk.UpdateTenants(c.Request.Context(), scope, req.TenantIDs, bulkops.TenantPatch{
		Action:   req.Action,
		Features: req.Features,
		Config:   req.Config,
	})
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
