package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// User is the stable identity record a provider produces on successful
// authorize/register. It is treated as an immutable value once it enters
// session construction.
type User struct {
	ID         string         `json:"id"`
	Email      string         `json:"email,omitempty"`
	Name       string         `json:"name,omitempty"`
	Image      string         `json:"image,omitempty"`
	Roles      []string       `json:"roles,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AddAttribute appends information to the attribute map.
func (u *User) AddAttribute(key string, val any) *User {
	if u.Attributes == nil {
		u.Attributes = make(map[string]any)
	}
	u.Attributes[key] = val
	return u
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Principal is the distilled post-authentication identity attached to a
// request. The mapping User <-> Principal is lossless: email, name, and image
// travel inside the attribute map.
type Principal struct {
	ID         string         `json:"id"`
	Roles      []string       `json:"roles,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// reserved attribute keys used by the lossless User mapping
const (
	attrEmail = "email"
	attrName  = "name"
	attrImage = "image"
)

// ToPrincipal derives the request principal. The user id must be non-empty.
func (u *User) ToPrincipal() (Principal, error) {
	if u == nil || u.ID == "" {
		return Principal{}, goerrors.New("user id must not be empty", goerrors.CategoryValidation)
	}

	attrs := make(map[string]any, len(u.Attributes)+3)
	for k, v := range u.Attributes {
		attrs[k] = v
	}
	if u.Email != "" {
		attrs[attrEmail] = u.Email
	}
	if u.Name != "" {
		attrs[attrName] = u.Name
	}
	if u.Image != "" {
		attrs[attrImage] = u.Image
	}

	return Principal{
		ID:         u.ID,
		Roles:      append([]string(nil), u.Roles...),
		Attributes: attrs,
	}, nil
}

// UserFromPrincipal reverses ToPrincipal.
func UserFromPrincipal(p Principal) *User {
	user := &User{
		ID:    p.ID,
		Roles: append([]string(nil), p.Roles...),
	}

	if len(p.Attributes) > 0 {
		user.Attributes = make(map[string]any, len(p.Attributes))
	}

	for k, v := range p.Attributes {
		switch k {
		case attrEmail:
			if s, ok := v.(string); ok {
				user.Email = s
				continue
			}
		case attrName:
			if s, ok := v.(string); ok {
				user.Name = s
				continue
			}
		case attrImage:
			if s, ok := v.(string); ok {
				user.Image = s
				continue
			}
		}
		user.Attributes[k] = v
	}

	if len(user.Attributes) == 0 {
		user.Attributes = nil
	}

	return user
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrincipalID implements gate.Principal.
func (p Principal) PrincipalID() string { return p.ID }

// PrincipalRoles implements gate.Principal.
func (p Principal) PrincipalRoles() []string { return p.Roles }

// Credentials is the raw untrusted sign-in/register input. It only lives for
// the duration of the call.
type Credentials struct {
	Email      string         `json:"email,omitempty"`
	Username   string         `json:"username,omitempty"`
	Password   string         `json:"password,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Identifier returns email when set, falling back to username.
func (c Credentials) Identifier() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Username
}

// ProviderTokens carries the provider-issued tokens stored on an Account.
type ProviderTokens struct {
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Raw          map[string]any `json:"raw,omitempty"`
}

// Account links a provider account to a local user. The
// (ProviderID, ProviderAccountID) pair is unique.
type Account struct {
	ProviderID        string         `json:"provider_id"`
	ProviderAccountID string         `json:"provider_account_id"`
	UserID            string         `json:"user_id"`
	Tokens            ProviderTokens `json:"tokens"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// VerificationToken is a single-use email magic-link token. Once consumed or
// expired it never validates again.
type VerificationToken struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
