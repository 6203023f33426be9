package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexushub/controlplane/internal/common/dto"
	"github.com/nexushub/controlplane/internal/common/errorx"
)

// Login authenticates a user and issues a JWT.
func (h *Handler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	user, err := h.db.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil || user == nil || !user.IsActive {
		h.errs.HandleError(c, errorx.ErrInvalidCredentials)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidCredentials)
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": dto.UserInfo{
			ID:                 user.ID,
			Username:           user.Username,
			TenantID:           user.TenantID,
			Role:               string(user.Role),
			IsSuperAdmin:       user.IsSuperAdmin,
			IsGlobalSuperAdmin: user.IsGlobalSuperAdmin,
		},
	})
}
