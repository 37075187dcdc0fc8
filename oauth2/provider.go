package oauth2

import (
	"context"

	auth "github.com/goliatone/go-authkit"
)

// Profile is the normalized identity extracted from a provider's user
// payload.
type Profile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
	Raw           map[string]any
}

// ProfileMapper converts the raw userinfo document into a Profile.
type ProfileMapper func(raw map[string]any) (*Profile, error)

// ProfileEnricher runs after the profile is mapped and may issue additional
// provider requests, e.g. to fetch a verified email. Enrichment is best
// effort, errors only log.
type ProfileEnricher func(ctx context.Context, client *Client, token *Token, profile *Profile) error

// Provider adapts one OAuth2 client into an authentication provider. The
// PKCE verifier and post-auth redirect travel inside the encrypted state.
type Provider struct {
	id         string
	name       string
	client     *Client
	state      StateManager
	mapProfile ProfileMapper
	enrich     ProfileEnricher
	usePKCE    bool
	logger     Logger
}

// Logger matches the root package logger without importing it.
type Logger interface {
	Warn(format string, args ...any)
}

// ProviderOption customizes the provider.
type ProviderOption func(*Provider)

// WithPKCE enables PKCE on the authorization flow.
func WithPKCE() ProviderOption {
	return func(p *Provider) { p.usePKCE = true }
}

// WithProfileEnricher installs a best-effort enrichment step.
func WithProfileEnricher(enrich ProfileEnricher) ProviderOption {
	return func(p *Provider) { p.enrich = enrich }
}

// WithProviderName overrides the display name.
func WithProviderName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithLogger overrides the no-op logger.
func WithLogger(l Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// NewProvider creates an OAuth2 authentication provider.
func NewProvider(id string, client *Client, state StateManager, mapProfile ProfileMapper, opts ...ProviderOption) *Provider {
	p := &Provider{
		id:         id,
		name:       id,
		client:     client,
		state:      state,
		mapProfile: mapProfile,
		logger:     noopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// ID implements auth.Provider.
func (p *Provider) ID() string { return p.id }

// Name implements auth.Provider.
func (p *Provider) Name() string { return p.name }

// Type implements auth.Provider.
func (p *Provider) Type() auth.ProviderType { return auth.ProviderTypeOAuth }

// Client exposes the underlying OAuth2 client.
func (p *Provider) Client() *Client { return p.client }

// AuthorizationURL implements auth.OAuthAuthorizer.
func (p *Provider) AuthorizationURL(_ context.Context, req auth.AuthorizationRequest) (string, error) {
	state := &State{
		Provider:    p.id,
		RedirectURL: req.RedirectURL,
	}

	var authOpts []AuthCodeOption
	if p.usePKCE {
		verifier, err := GenerateCodeVerifier()
		if err != nil {
			return "", err
		}
		state.CodeVerifier = verifier
		authOpts = append(authOpts, WithCodeChallenge(ComputeCodeChallenge(verifier)))
	}

	encoded, err := p.state.Encode(state)
	if err != nil {
		return "", err
	}

	return p.client.AuthCodeURL(encoded, authOpts...), nil
}

// HandleCallback implements auth.OAuthAuthorizer.
func (p *Provider) HandleCallback(ctx context.Context, code, stateToken string) (*auth.OAuthResult, error) {
	state, err := p.state.Decode(stateToken)
	if err != nil {
		return nil, err
	}
	if state.Provider != p.id {
		return nil, ErrInvalidState
	}

	token, err := p.client.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, err
	}

	raw, err := p.client.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	profile, err := p.mapProfile(raw)
	if err != nil {
		return nil, err
	}

	if p.enrich != nil {
		if err := p.enrich(ctx, p.client, token, profile); err != nil {
			p.logger.Warn("profile enrichment failed: %v", err)
		}
	}

	return &auth.OAuthResult{
		User:        p.userFromProfile(profile),
		Tokens:      providerTokens(token),
		RedirectURL: state.RedirectURL,
	}, nil
}

func (p *Provider) userFromProfile(profile *Profile) *auth.User {
	user := &auth.User{
		ID:    p.id + ":" + profile.ID,
		Email: profile.Email,
		Name:  profile.Name,
		Image: profile.AvatarURL,
	}
	user.AddAttribute("provider_account_id", profile.ID)
	user.AddAttribute("email_verified", profile.EmailVerified)
	return user
}

func providerTokens(token *Token) *auth.ProviderTokens {
	out := &auth.ProviderTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Raw:          token.Raw,
	}
	if !token.ExpiresAt.IsZero() {
		expires := token.ExpiresAt
		out.ExpiresAt = &expires
	}
	return out
}

var _ interface {
	auth.Provider
	auth.OAuthAuthorizer
} = (*Provider)(nil)
