package dto

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserInfo represents the user information returned on login
type UserInfo struct {
	ID                 uint   `json:"id"`
	Username           string `json:"username"`
	TenantID           uint   `json:"tenantId"`
	Role               string `json:"role"`
	IsSuperAdmin       bool   `json:"isSuperAdmin"`
	IsGlobalSuperAdmin bool   `json:"isGlobalSuperAdmin"`
}
