package oauth2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AuthStyle selects how client credentials travel to the token endpoint.
type AuthStyle int

const (
	// AuthStyleBasic sends credentials in the Authorization header.
	AuthStyleBasic AuthStyle = iota
	// AuthStyleInBody sends credentials as form fields.
	AuthStyleInBody
)

// Endpoints holds the provider's OAuth2 endpoints. IntrospectURL and
// UserInfoURL are optional.
type Endpoints struct {
	AuthURL       string
	TokenURL      string
	UserInfoURL   string
	IntrospectURL string
}

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoints    Endpoints
	AuthStyle    AuthStyle

	// AuthParams are extra query parameters added to every authorization
	// URL, e.g. access_type=offline for Google.
	AuthParams url.Values

	HTTPClient *http.Client
}

// Token is a provider-issued token set.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Scopes       []string
	Raw          map[string]any
}

// Introspection is the outcome of an RFC 7662 introspection call.
type Introspection struct {
	Active    bool           `json:"active"`
	Subject   string         `json:"sub,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	Scope     string         `json:"scope,omitempty"`
	ExpiresAt time.Time      `json:"expires_at,omitempty"`
	NotBefore time.Time      `json:"not_before,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// Client talks to one OAuth2 provider. It implements the authorization code,
// refresh, and client credentials grants plus userinfo and introspection.
type Client struct {
	cfg      Config
	http     *http.Client
	name     string
	cache    IntrospectionCache
	cacheTTL time.Duration
	skew     time.Duration
	now      func() time.Time
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithIntrospectionCache caches introspection results for ttl.
func WithIntrospectionCache(cache IntrospectionCache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithClientSkew sets the leeway applied to exp and nbf on cached
// introspection results.
func WithClientSkew(skew time.Duration) ClientOption {
	return func(c *Client) {
		if skew >= 0 {
			c.skew = skew
		}
	}
}

// WithClientClock injects a custom clock.
func WithClientClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithClientName sets the provider name used in errors.
func WithClientName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...ClientOption) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		cfg:      cfg,
		http:     httpClient,
		name:     "oauth2",
		cacheTTL: 5 * time.Minute,
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// AuthCodeOption customizes a single authorization URL.
type AuthCodeOption func(url.Values)

// WithCodeChallenge adds PKCE parameters to the authorization URL.
func WithCodeChallenge(challenge string) AuthCodeOption {
	return func(v url.Values) {
		v.Set("code_challenge", challenge)
		v.Set("code_challenge_method", "S256")
	}
}

// AuthCodeURL builds the authorization redirect URL for state.
func (c *Client) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURL},
		"state":         {state},
	}
	if len(c.cfg.Scopes) > 0 {
		params.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}

	for key, values := range c.cfg.AuthParams {
		for _, v := range values {
			params.Add(key, v)
		}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(params)
		}
	}

	return c.cfg.Endpoints.AuthURL + "?" + params.Encode()
}

// ExchangeOption customizes a code exchange.
type ExchangeOption func(url.Values)

// WithCodeVerifier adds the PKCE verifier to the exchange request.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(v url.Values) {
		if verifier != "" {
			v.Set("code_verifier", verifier)
		}
	}
}

// Exchange trades an authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURL},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(form)
		}
	}

	return c.tokenRequest(ctx, "exchange", form)
}

// Refresh trades a refresh token for a fresh token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	token, err := c.tokenRequest(ctx, "refresh", form)
	if err != nil {
		return nil, err
	}

	// some providers omit the refresh token on rotation
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return token, nil
}

// ClientCredentials obtains a token for the client itself.
func (c *Client) ClientCredentials(ctx context.Context, scopes ...string) (*Token, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	return c.tokenRequest(ctx, "client_credentials", form)
}

// FetchUserInfo fetches the provider's userinfo document with a bearer token.
func (c *Client) FetchUserInfo(ctx context.Context, token *Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.providerError("user_info", 0, "", "request failed", err, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.providerError("user_info", resp.StatusCode, "", "failed to read response", err, nil)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError("user_info", resp.StatusCode, "", strings.TrimSpace(string(body)), nil, nil)
	}

	var profile map[string]any
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, c.providerError("user_info", resp.StatusCode, "invalid_response", "failed to decode userinfo response", err, nil)
	}

	return profile, nil
}

// IntrospectOption customizes a single introspection call.
type IntrospectOption func(url.Values)

// WithTokenTypeHint tells the provider which token class to check first, per
// RFC 7662 section 2.1.
func WithTokenTypeHint(hint string) IntrospectOption {
	return func(v url.Values) {
		if hint != "" {
			v.Set("token_type_hint", hint)
		}
	}
}

// WithIntrospectParam adds an extra form parameter to the request.
func WithIntrospectParam(key, value string) IntrospectOption {
	return func(v url.Values) {
		v.Set(key, value)
	}
}

// Introspect asks the provider whether token is active. Results are cached,
// but exp and nbf are rechecked with skew on every hit so a cached result
// never outlives the token. Transport failures report the token as inactive
// rather than erroring: a token is only ever valid on the provider's word.
func (c *Client) Introspect(ctx context.Context, token string, opts ...IntrospectOption) (*Introspection, error) {
	form := url.Values{"token": {token}}
	for _, opt := range opts {
		if opt != nil {
			opt(form)
		}
	}

	// the key covers every request parameter, so calls with different hints
	// never share a cache entry
	key := introspectionKey(form)

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			return c.recheck(cached), nil
		}
	}

	result := c.introspectRemote(ctx, form)

	if c.cache != nil && result.Active {
		ttl := c.cacheTTL
		if !result.ExpiresAt.IsZero() {
			if remaining := result.ExpiresAt.Sub(c.now()); remaining < ttl {
				ttl = remaining
			}
		}
		if ttl > 0 {
			c.cache.Set(ctx, key, result, ttl)
		}
	}

	return result, nil
}

func (c *Client) introspectRemote(ctx context.Context, form url.Values) *Introspection {
	body, status, err := c.postForm(ctx, c.cfg.Endpoints.IntrospectURL, form)
	if err != nil || status != http.StatusOK {
		return &Introspection{Active: false}
	}

	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return &Introspection{Active: false}
	}

	result := &Introspection{Raw: raw}
	result.Active, _ = raw["active"].(bool)
	result.Subject, _ = raw["sub"].(string)
	result.ClientID, _ = raw["client_id"].(string)
	result.Scope, _ = raw["scope"].(string)

	if exp, ok := numericClaim(raw["exp"]); ok {
		result.ExpiresAt = time.Unix(exp, 0)
	}
	if nbf, ok := numericClaim(raw["nbf"]); ok {
		result.NotBefore = time.Unix(nbf, 0)
	}

	return c.recheck(result)
}

// recheck re-applies the time window so cached results expire with the token.
func (c *Client) recheck(in *Introspection) *Introspection {
	if !in.Active {
		return in
	}

	now := c.now()
	if !in.ExpiresAt.IsZero() && now.Add(-c.skew).After(in.ExpiresAt) {
		out := *in
		out.Active = false
		return &out
	}
	if !in.NotBefore.IsZero() && now.Add(c.skew).Before(in.NotBefore) {
		out := *in
		out.Active = false
		return &out
	}

	return in
}

func (c *Client) tokenRequest(ctx context.Context, operation string, form url.Values) (*Token, error) {
	if c.cfg.AuthStyle == AuthStyleInBody {
		form.Set("client_id", c.cfg.ClientID)
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if c.cfg.AuthStyle == AuthStyleBasic {
		req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.providerError(operation, 0, "", "request failed", err, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.providerError(operation, resp.StatusCode, "", "failed to read response", err, nil)
	}

	payload, err := decodeTokenResponse(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, c.providerError(operation, resp.StatusCode, "invalid_response", "failed to decode token response", err, nil)
	}

	if errCode, _ := payload["error"].(string); errCode != "" || resp.StatusCode != http.StatusOK {
		desc, _ := payload["error_description"].(string)
		return nil, c.providerError(operation, resp.StatusCode, errCode, desc, nil, payload)
	}

	token := tokenFromPayload(payload, c.now())
	if token.AccessToken == "" {
		return nil, c.providerError(operation, resp.StatusCode, "missing_access_token", "missing access token", nil, payload)
	}

	return token, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}

func (c *Client) providerError(operation string, status int, code, description string, err error, raw map[string]any) *ProviderError {
	return &ProviderError{
		Provider:    c.name,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}

// decodeTokenResponse handles both JSON and form-encoded token responses.
// GitHub predates RFC 6749 and answers form encoded unless asked otherwise,
// so the content type drives the decoder with a sniffing fallback.
func decodeTokenResponse(contentType string, body []byte) (map[string]any, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch mediaType {
	case "application/x-www-form-urlencoded", "text/plain":
		return formToPayload(string(body))
	case "application/json":
		return jsonToPayload(body)
	}

	if payload, err := jsonToPayload(body); err == nil {
		return payload, nil
	}
	return formToPayload(string(body))
}

func jsonToPayload(body []byte) (map[string]any, error) {
	payload := map[string]any{}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formToPayload(body string) (map[string]any, error) {
	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{}
	for key := range values {
		payload[key] = values.Get(key)
	}
	return payload, nil
}

// tokenFromPayload coerces the loosely typed token response. Numeric fields
// arrive as json.Number, plain numbers, or strings depending on the provider.
func tokenFromPayload(payload map[string]any, now time.Time) *Token {
	token := &Token{Raw: payload}

	token.AccessToken, _ = payload["access_token"].(string)
	token.RefreshToken, _ = payload["refresh_token"].(string)
	token.TokenType, _ = payload["token_type"].(string)
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}

	if expiresIn, ok := numericClaim(payload["expires_in"]); ok && expiresIn > 0 {
		token.ExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	}

	if scope, _ := payload["scope"].(string); scope != "" {
		token.Scopes = splitScopes(scope)
	}

	return token
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func splitScopes(scope string) []string {
	sep := " "
	if strings.Contains(scope, ",") {
		sep = ","
	}

	parts := strings.Split(scope, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func introspectionKey(form url.Values) string {
	sum := sha256.Sum256([]byte(form.Encode()))
	return "oauth2:introspect:" + hex.EncodeToString(sum[:])
}
