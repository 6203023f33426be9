package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/auth/jwt"
	"github.com/nexushub/controlplane/internal/bulkops"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/internal/federation"
	"github.com/nexushub/controlplane/internal/hierarchy"
)

// Handler wires the HTTP layer to the services. One instance serves all
// routes.
type Handler struct {
	db         database.Database
	jwtService *jwt.Service
	access     *access.Service
	hierarchy  *hierarchy.Service
	bulk       *bulkops.Service
	federation *federation.Service
	audit      *audit.Service
	errs       *errorx.ErrorHandler
	logger     *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(
	db database.Database,
	jwtService *jwt.Service,
	accessSvc *access.Service,
	hierarchySvc *hierarchy.Service,
	bulkSvc *bulkops.Service,
	federationSvc *federation.Service,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		db:         db,
		jwtService: jwtService,
		access:     accessSvc,
		hierarchy:  hierarchySvc,
		bulk:       bulkSvc,
		federation: federationSvc,
		audit:      auditSvc,
		errs:       errorx.NewErrorHandler(logger.Named("http")),
		logger:     logger.Named("handler"),
	}
}

// scopeOf resolves the administrative scope of the authenticated user. The
// JWT middleware has already placed the validated claims on the context; a
// user deleted or demoted since the token was issued fails here.
func (h *Handler) scopeOf(c *gin.Context) (*access.Scope, bool) {
	v, exists := c.Get("claims")
	if !exists {
		h.errs.HandleError(c, errorx.ErrUnauthorized)
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok {
		h.errs.HandleError(c, errorx.ErrUnauthorized)
		return nil, false
	}

	scope, err := h.access.Resolve(c.Request.Context(), claims.UserID)
	if err != nil {
		h.errs.HandleError(c, err)
		return nil, false
	}
	return scope, true
}

// pathID parses a positive integer path parameter.
func (h *Handler) pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		h.errs.HandleError(c, errorx.ValidationError(name, raw, "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
