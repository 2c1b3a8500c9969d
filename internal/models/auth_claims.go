package models

import "github.com/golang-jwt/jwt/v5"

// Roles recognized by the authorization middleware. Tokens are minted by the
// identity service; this backend only verifies and reads them.
const (
	RoleUser        = "user"
	RoleContributor = "contributor"
	RoleBranchAdmin = "branch_admin"
	RoleAdmin       = "admin"
)

type JwtCustomClaims struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
