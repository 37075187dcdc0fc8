// Package github wires the GitHub OAuth flow, including the email fallback:
// GitHub profiles often hide the email, so the verified address is fetched
// from the emails endpoint after sign in.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-authkit/oauth2"
)

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	StateManager oauth2.StateManager
	HTTPClient   *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// New creates the GitHub provider.
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
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	client := oauth2.New(oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInBody,
		Endpoints: oauth2.Endpoints{
			AuthURL:     cfg.AuthURL,
			TokenURL:    cfg.TokenURL,
			UserInfoURL: cfg.UserURL,
		},
		HTTPClient: cfg.HTTPClient,
	}, oauth2.WithClientName("github"))

	emailsURL := cfg.EmailsURL
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	opts = append([]oauth2.ProviderOption{
		oauth2.WithProviderName("GitHub"),
		oauth2.WithProfileEnricher(emailEnricher(httpClient, emailsURL)),
	}, opts...)

	return oauth2.NewProvider("github", client, cfg.StateManager, MapProfile, opts...)
}

// MapProfile converts the GitHub user document into a profile.
func MapProfile(raw map[string]any) (*oauth2.Profile, error) {
	profile := &oauth2.Profile{Raw: raw}

	switch id := raw["id"].(type) {
	case float64:
		profile.ID = fmt.Sprintf("%.0f", id)
	case json.Number:
		profile.ID = id.String()
	case string:
		profile.ID = id
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("github: profile is missing id")
	}

	profile.Email, _ = raw["email"].(string)
	profile.Name, _ = raw["name"].(string)
	if profile.Name == "" {
		profile.Name, _ = raw["login"].(string)
	}
	profile.AvatarURL, _ = raw["avatar_url"].(string)

	return profile, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// emailEnricher replaces the profile email with the primary verified address
// from the emails endpoint.
func emailEnricher(httpClient *http.Client, emailsURL string) oauth2.ProfileEnricher {
	return func(ctx context.Context, _ *oauth2.Client, token *oauth2.Token, profile *oauth2.Profile) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, emailsURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		req.Header.Set("Accept", "application/vnd.github.v3+json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("github: emails request failed with status %d", resp.StatusCode)
		}

		var emails []githubEmail
		if err := json.Unmarshal(body, &emails); err != nil {
			return err
		}

		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				profile.EmailVerified = true
				return nil
			}
		}
		for _, e := range emails {
			if e.Verified {
				profile.Email = e.Email
				profile.EmailVerified = true
				return nil
			}
		}

		return nil
	}
}
