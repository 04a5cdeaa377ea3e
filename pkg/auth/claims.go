package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Name   string
	Role   enums.UserRole
}

// AccessTokenClaims represents the identity provider's bearer token. The subject
// is the acting user id; one user may be a requester on some orders and a vendor on others.
type AccessTokenClaims struct {
	Email string         `json:"email,omitempty"`
	Name  string         `json:"name,omitempty"`
	Role  enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *AccessTokenClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
