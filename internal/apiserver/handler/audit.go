package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/common/dto"
	"github.com/nexushub/controlplane/internal/common/errorx"
)

// QueryAudit returns audit entries matching the query parameters, newest
// first. Restricted to global and master hub admins.
func (h *Handler) QueryAudit(c *gin.Context) {
	scope, ok := h.scopeOf(c)
	if !ok {
		return
	}
	if scope.Level != access.LevelGod && scope.Level != access.LevelMasterHubAdmin {
		h.errs.HandleError(c, errorx.ErrScopeDenied.WithDetail("operation", "query audit log"))
		return
	}

	var q dto.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.errs.HandleError(c, errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	filter := &audit.QueryFilter{
		PayloadPath:  q.PayloadPath,
		PayloadValue: q.PayloadValue,
	}
	filter.ActionType = q.ActionType
	filter.TargetType = q.TargetType
	filter.TargetID = q.TargetID
	filter.ActorID = q.ActorID
	filter.Level = q.Level
	filter.Search = q.Search
	filter.Limit = q.Limit
	filter.Offset = q.Offset

	if q.Since != "" {
		t, err := time.Parse(time.RFC3339, q.Since)
		if err != nil {
			h.errs.HandleError(c, errorx.ValidationError("since", q.Since, "must be RFC 3339"))
			return
		}
		filter.Since = &t
	}
	if q.Until != "" {
		t, err := time.Parse(time.RFC3339, q.Until)
		if err != nil {
			h.errs.HandleError(c, errorx.ValidationError("until", q.Until, "must be RFC 3339"))
			return
		}
		filter.Until = &t
	}

	entries, total, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		h.errs.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
	})
}
