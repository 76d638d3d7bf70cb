package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
//
// The principal travels in the registered "sub" claim; it is the id recorded as
// creator, approver, delegate and audit actor. Role is one of the closed rbac
// roles and is only carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// Principal is the authenticated user id.
func (c Claims) Principal() string { return c.Subject }
