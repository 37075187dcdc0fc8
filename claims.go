package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed claim set the JWT codec works with: the registered
// claims plus the principal's roles and attribute extensions.
type Claims struct {
	jwt.RegisteredClaims
	Roles      []string       `json:"roles,omitempty"`
	Attributes map[string]any `json:"attrs,omitempty"`
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.RegisteredClaims.Subject
}

// HasRole reports whether the claim set carries the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Principal reconstructs the request principal from a verified claim set.
func (c *Claims) Principal() Principal {
	return Principal{
		ID:         c.UserID(),
		Roles:      append([]string(nil), c.Roles...),
		Attributes: c.Attributes,
	}
}

// IssuedTime returns iat or the zero time.
func (c *Claims) IssuedTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ExpiryTime returns exp or the zero time.
func (c *Claims) ExpiryTime() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Payload is the verified view of a token: it is only ever produced by a
// successful Verifier run, never constructed from untrusted input.
type Payload struct {
	Subject   string
	Claims    map[string]any
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// claimsFromPrincipal builds the base claim set for issuance.
func claimsFromPrincipal(p Principal, issuer string, audience []string, now time.Time, ttl time.Duration) *Claims {
	var aud jwt.ClaimStrings
	if len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ID,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:      append([]string(nil), p.Roles...),
		Attributes: p.Attributes,
	}
}
