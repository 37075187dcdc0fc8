package auth

import "context"

// ProviderType tags the closed set of provider kinds the Manager understands.
type ProviderType string

const (
	ProviderTypeCredentials ProviderType = "credentials"
	ProviderTypeOAuth       ProviderType = "oauth"
	ProviderTypeEmail       ProviderType = "email"
)

// Provider is the common surface of every authentication provider.
type Provider interface {
	ID() string
	Name() string
	Type() ProviderType
}

// CredentialsAuthorizer authenticates raw credentials. A failed password
// check returns (nil, nil), not an error; errors are reserved for store and
// validation failures.
type CredentialsAuthorizer interface {
	Provider
	Authorize(ctx context.Context, creds Credentials) (*User, error)
}

// Registrar is the optional first-time-signup hook with the same contract as
// Authorize.
type Registrar interface {
	Register(ctx context.Context, creds Credentials) (*User, error)
}

// AuthorizationRequest carries the per-request parts of an OAuth redirect.
type AuthorizationRequest struct {
	// RedirectURL is the sanitized post-login destination carried through
	// the signed state parameter.
	RedirectURL string
}

// OAuthResult is what an OAuth provider produces from a completed callback.
type OAuthResult struct {
	User        *User
	Tokens      *ProviderTokens
	RedirectURL string
}

// OAuthAuthorizer runs the authorization-code dance: it builds the signed
// redirect and completes the code exchange on callback.
type OAuthAuthorizer interface {
	Provider
	AuthorizationURL(ctx context.Context, req AuthorizationRequest) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*OAuthResult, error)
}

// EmailAuthorizer starts and completes magic-link sign-in.
type EmailAuthorizer interface {
	Provider
	StartSignIn(ctx context.Context, identifier string) error
	ConsumeToken(ctx context.Context, identifier, token string) (*User, error)
}

// ProviderInfo is the public description of a registered provider.
type ProviderInfo struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Type ProviderType `json:"type"`
}
