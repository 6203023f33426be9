package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/dto"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/internal/hierarchy"
)

// ListUsers returns the users of one tenant. With no tenantId query
// parameter the caller's home tenant is used; a global super admin gets
// every user across all tenants instead.
func (h *Handler) ListUsers(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	tenantID := scope.Tenant.ID
	if scope.IsGod() {
		tenantID = 0
	}
	if raw := c.Query("tenantId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			h.errs.HandleError(c, errorx.ValidationError("tenantId", raw, "must be a positive integer"))
			return
		}
		tenantID = uint(id)
	}

	users, err := h.hierarchy.ListUsers(c.Request.Context(), scope, tenantID)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

// CreateUser creates an account inside a managed tenant.
func (h *Handler) CreateUser(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}

	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	user, err := h.hierarchy.CreateUser(c.Request.Context(), scope, hierarchy.CreateUserInput{
		TenantID:     req.TenantID,
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		IsSuperAdmin: req.IsSuperAdmin,
	})
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// MoveUser moves a user to another tenant, dropping their admin standing.
func (h *Handler) MoveUser(c *gin.Context) {
	h.moveUser(c, false)
}

// MoveUserAndPromote moves a user and grants super admin in the destination.
func (h *Handler) MoveUserAndPromote(c *gin.Context) {
	h.moveUser(c, true)
}

func (h *Handler) moveUser(c *gin.Context, promote bool) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.MoveUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	var (
		user *database.User
		err  error
	)
	if promote {
		user, err = h.hierarchy.MoveAndPromote(c.Request.Context(), scope, id, req.TenantID)
	} else {
		user, err = h.hierarchy.MoveUser(c.Request.Context(), scope, id, req.TenantID)
	}
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GrantSuperAdmin makes a user super admin of their home tenant.
func (h *Handler) GrantSuperAdmin(c *gin.Context) {
	h.setSuperAdmin(c, true)
}

// RevokeSuperAdmin removes tenant super admin standing from a user.
func (h *Handler) RevokeSuperAdmin(c *gin.Context) {
	h.setSuperAdmin(c, false)
}

func (h *Handler) setSuperAdmin(c *gin.Context, grant bool) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var (
		user *database.User
		err  error
	)
	if grant {
		user, err = h.hierarchy.AssignTenantSuperAdmin(c.Request.Context(), scope, id)
	} else {
		user, err = h.hierarchy.RevokeTenantSuperAdmin(c.Request.Context(), scope, id)
	}
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GrantGlobalSuperAdmin elevates a user to global super admin.
func (h *Handler) GrantGlobalSuperAdmin(c *gin.Context) {
	h.setGlobalSuperAdmin(c, true)
}

// RevokeGlobalSuperAdmin strips global super admin from a user.
func (h *Handler) RevokeGlobalSuperAdmin(c *gin.Context) {
	h.setGlobalSuperAdmin(c, false)
}

func (h *Handler) setGlobalSuperAdmin(c *gin.Context, grant bool) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var (
		user *database.User
		err  error
	)
	if grant {
		user, err = h.hierarchy.GrantGlobalSuperAdmin(c.Request.Context(), scope, id)
	} else {
		user, err = h.hierarchy.RevokeGlobalSuperAdmin(c.Request.Context(), scope, id)
	}
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
