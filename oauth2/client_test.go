package oauth2_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-authkit/oauth2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(cfg oauth2.Config, opts ...oauth2.ClientOption) *oauth2.Client {
	if cfg.ClientID == "" {
		cfg.ClientID = "client-id"
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = "client-secret"
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "https://app.example.com/auth/callback/test"
	}
	return oauth2.New(cfg, opts...)
}

func TestAuthCodeURL(t *testing.T) {
	client := newClient(oauth2.Config{
		Scopes: []string{"openid", "email"},
		Endpoints: oauth2.Endpoints{
			AuthURL: "https://provider.example.com/authorize",
		},
		AuthParams: url.Values{"access_type": {"offline"}},
	})

	raw := client.AuthCodeURL("state-123", oauth2.WithCodeChallenge("challenge-abc"))

	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "openid email", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestExchangeJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-abc", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-xyz", r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"scope":         "openid email",
		})
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{
		Endpoints: oauth2.Endpoints{TokenURL: srv.URL},
	})

	token, err := client.Exchange(context.Background(), "code-abc", oauth2.WithCodeVerifier("verifier-xyz"))
	require.NoError(t, err)

	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, []string{"openid", "email"}, token.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
}

func TestExchangeFormEncodedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// in-body auth means no Authorization header
		assert.Empty(t, r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("access_token=access-2&token_type=bearer&scope=repo,user"))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{
		AuthStyle: oauth2.AuthStyleInBody,
		Endpoints: oauth2.Endpoints{TokenURL: srv.URL},
	})

	token, err := client.Exchange(context.Background(), "code-abc")
	require.NoError(t, err)

	assert.Equal(t, "access-2", token.AccessToken)
	assert.Equal(t, []string{"repo", "user"}, token.Scopes)
	assert.True(t, token.ExpiresAt.IsZero())
}

func TestExchangeDefaultsTokenType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-3"}`))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{TokenURL: srv.URL}})

	token, err := client.Exchange(context.Background(), "code-abc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
}

func TestExchangeErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{TokenURL: srv.URL}},
		oauth2.WithClientName("github"))

	_, err := client.Exchange(context.Background(), "code-abc")
	require.Error(t, err)

	perr, ok := oauth2.IsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "github", perr.Provider)
	assert.Equal(t, "exchange", perr.Operation)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Equal(t, "invalid_grant", perr.Code)
	assert.Equal(t, "code expired", perr.Description)
}

func TestRefreshPreservesRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-old", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-4","token_type":"bearer"}`))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{TokenURL: srv.URL}})

	token, err := client.Refresh(context.Background(), "refresh-old")
	require.NoError(t, err)

	assert.Equal(t, "access-4", token.AccessToken)
	assert.Equal(t, "refresh-old", token.RefreshToken)
}

func TestClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "api:read api:write", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-5","expires_in":"600"}`))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{TokenURL: srv.URL}})

	token, err := client.ClientCredentials(context.Background(), "api:read", "api:write")
	require.NoError(t, err)

	assert.Equal(t, "access-5", token.AccessToken)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), token.ExpiresAt, time.Minute)
}

func TestFetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-6", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"user-1","email":"ada@example.com"}`))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{UserInfoURL: srv.URL}})

	profile, err := client.FetchUserInfo(context.Background(), &oauth2.Token{AccessToken: "access-6"})
	require.NoError(t, err)

	assert.Equal(t, "user-1", profile["sub"])
	assert.Equal(t, "ada@example.com", profile["email"])
}

func TestIntrospectCachesActiveResults(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "token-1", r.PostForm.Get("token"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"active": true,
			"sub":    "user-1",
			"scope":  "api:read",
			"exp":    time.Now().Add(time.Hour).Unix(),
		})
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{IntrospectURL: srv.URL}},
		oauth2.WithIntrospectionCache(oauth2.NewMemoryIntrospectionCache(), time.Minute))

	for i := 0; i < 3; i++ {
		result, err := client.Introspect(context.Background(), "token-1")
		require.NoError(t, err)
		assert.True(t, result.Active)
		assert.Equal(t, "user-1", result.Subject)
	}

	assert.Equal(t, int64(1), calls.Load())
}

func TestIntrospectRechecksExpiryOnCacheHits(t *testing.T) {
	now := time.Now()
	clock := now

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"active": true,
			"sub":    "user-1",
			"exp":    now.Add(30 * time.Second).Unix(),
		})
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{IntrospectURL: srv.URL}},
		oauth2.WithIntrospectionCache(oauth2.NewMemoryIntrospectionCache(), time.Minute),
		oauth2.WithClientClock(func() time.Time { return clock }),
		oauth2.WithClientSkew(time.Second))

	result, err := client.Introspect(context.Background(), "token-1")
	require.NoError(t, err)
	assert.True(t, result.Active)

	// the token expires before the cache entry does
	clock = now.Add(2 * time.Minute)

	result, err = client.Introspect(context.Background(), "token-1")
	require.NoError(t, err)
	assert.False(t, result.Active)
}

func TestIntrospectTransportFailureMeansInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{IntrospectURL: srv.URL}})

	result, err := client.Introspect(context.Background(), "token-1")
	require.NoError(t, err)
	assert.False(t, result.Active)
}

func TestIntrospectInactiveResultsAreNotCached(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":false}`))
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{IntrospectURL: srv.URL}},
		oauth2.WithIntrospectionCache(oauth2.NewMemoryIntrospectionCache(), time.Minute))

	for i := 0; i < 2; i++ {
		result, err := client.Introspect(context.Background(), "token-1")
		require.NoError(t, err)
		assert.False(t, result.Active)
	}

	assert.Equal(t, int64(2), calls.Load())
}

func TestMemoryIntrospectionCacheExpiry(t *testing.T) {
	cache := oauth2.NewMemoryIntrospectionCache()
	ctx := context.Background()

	cache.Set(ctx, "key", &oauth2.Introspection{Active: true}, 50*time.Millisecond)

	got, ok := cache.Get(ctx, "key")
	require.True(t, ok)
	assert.True(t, got.Active)

	time.Sleep(80 * time.Millisecond)

	_, ok = cache.Get(ctx, "key")
	assert.False(t, ok)
}

func TestIntrospectSendsTokenTypeHint(t *testing.T) {
	var calls atomic.Int64
	var lastHint string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "token-1", r.PostForm.Get("token"))
		lastHint = r.PostForm.Get("token_type_hint")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"active": true,
			"sub":    "user-1",
			"exp":    time.Now().Add(time.Hour).Unix(),
		})
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{IntrospectURL: srv.URL}},
		oauth2.WithIntrospectionCache(oauth2.NewMemoryIntrospectionCache(), time.Minute))

	// same hint reuses the cached result
	for i := 0; i < 2; i++ {
		result, err := client.Introspect(context.Background(), "token-1",
			oauth2.WithTokenTypeHint("access_token"))
		require.NoError(t, err)
		assert.True(t, result.Active)
	}
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, "access_token", lastHint)

	// a different hint is a different request, so it gets its own cache entry
	result, err := client.Introspect(context.Background(), "token-1",
		oauth2.WithTokenTypeHint("refresh_token"))
	require.NoError(t, err)
	assert.True(t, result.Active)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, "refresh_token", lastHint)
}

func TestIntrospectExtraParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://api.example.com", r.PostForm.Get("audience"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"active": true})
	}))
	defer srv.Close()

	client := newClient(oauth2.Config{Endpoints: oauth2.Endpoints{IntrospectURL: srv.URL}})

	result, err := client.Introspect(context.Background(), "token-1",
		oauth2.WithIntrospectParam("audience", "https://api.example.com"))
	require.NoError(t, err)
	assert.True(t, result.Active)
}
