// Package google wires the Google OpenID Connect flow with offline access
// and PKCE enabled by default.
package google

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/goliatone/go-authkit/oauth2"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	StateManager oauth2.StateManager
	HTTPClient   *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// New creates the Google provider.
func New(cfg Config, opts ...oauth2.ProviderOption) *oauth2.Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	client := oauth2.New(oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInBody,
		AuthParams: url.Values{
			"access_type": {"offline"},
			"prompt":      {"consent"},
		},
		Endpoints: oauth2.Endpoints{
			AuthURL:     cfg.AuthURL,
			TokenURL:    cfg.TokenURL,
			UserInfoURL: cfg.UserInfoURL,
		},
		HTTPClient: cfg.HTTPClient,
	}, oauth2.WithClientName("google"))

	opts = append([]oauth2.ProviderOption{
		oauth2.WithProviderName("Google"),
		oauth2.WithPKCE(),
	}, opts...)

	return oauth2.NewProvider("google", client, cfg.StateManager, MapProfile, opts...)
}

// MapProfile converts the OpenID Connect userinfo document into a profile.
func MapProfile(raw map[string]any) (*oauth2.Profile, error) {
	profile := &oauth2.Profile{Raw: raw}

	profile.ID, _ = raw["sub"].(string)
	if profile.ID == "" {
		return nil, fmt.Errorf("google: profile is missing sub")
	}

	profile.Email, _ = raw["email"].(string)
	profile.EmailVerified, _ = raw["email_verified"].(bool)
	profile.Name, _ = raw["name"].(string)
	profile.AvatarURL, _ = raw["picture"].(string)

	return profile, nil
}
