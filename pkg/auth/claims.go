package auth

import (
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	MemberID string
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients. The subject
// is the member id.
type AccessTokenClaims struct {
	Role enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// MemberID returns the token subject.
func (c *AccessTokenClaims) MemberID() string {
	return c.Subject
}
