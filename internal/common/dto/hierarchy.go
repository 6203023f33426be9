package dto

// CreateTenantRequest creates a sub-tenant under an existing hub.
type CreateTenantRequest struct {
	ParentID    uint           `json:"parentId" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Domain      string         `json:"domain,omitempty"`
	Description string         `json:"description,omitempty"`
	IsHub       bool           `json:"isHub"`
	MaxSubDepth int            `json:"maxSubDepth"`
	Features    map[string]any `json:"features,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// UpdateTenantRequest touches only the fields present in the request body.
type UpdateTenantRequest struct {
	Name        *string        `json:"name,omitempty"`
	Domain      *string        `json:"domain,omitempty"`
	Description *string        `json:"description,omitempty"`
	MaxSubDepth *int           `json:"maxSubDepth,omitempty"`
	IsActive    *bool          `json:"isActive,omitempty"`
	Features    map[string]any `json:"features,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// MoveTenantRequest re-parents a tenant subtree.
type MoveTenantRequest struct {
	NewParentID uint `json:"newParentId" binding:"required"`
}

// ToggleHubRequest flips the hub capability of a tenant.
type ToggleHubRequest struct {
	Enable bool `json:"enable"`
}

// CreateUserRequest creates a user inside a tenant.
type CreateUserRequest struct {
	TenantID     uint   `json:"tenantId" binding:"required"`
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password" binding:"required"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// MoveUserRequest moves a user to another tenant.
type MoveUserRequest struct {
	TenantID uint `json:"tenantId" binding:"required"`
}

// BulkMoveUsersRequest moves a batch of users to one destination tenant.
type BulkMoveUsersRequest struct {
	UserIDs         []uint `json:"userIds" binding:"required,min=1"`
	DestTenantID    uint   `json:"destTenantId" binding:"required"`
	GrantSuperAdmin bool   `json:"grantSuperAdmin"`
}

// BulkUpdateTenantsRequest applies one patch to a batch of tenants.
type BulkUpdateTenantsRequest struct {
	TenantIDs []uint         `json:"tenantIds" binding:"required,min=1"`
	Action    string         `json:"action,omitempty" binding:"omitempty,oneof=activate deactivate enable_hub disable_hub"`
	Features  map[string]any `json:"features,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// AuditQuery carries the audit log filters as query parameters.
type AuditQuery struct {
	ActionType   string `form:"actionType"`
	TargetType   string `form:"targetType"`
	TargetID     uint   `form:"targetId"`
	ActorID      uint   `form:"actorId"`
	Level        string `form:"level"`
	Search       string `form:"search"`
	Since        string `form:"since"`
	Until        string `form:"until"`
	PayloadPath  string `form:"payloadPath"`
	PayloadValue string `form:"payloadValue"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}
