package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// KeyResolver resolves the verification key for a parsed token header.
type KeyResolver interface {
	ResolveKey(token *jwt.Token) (any, error)
}

// InlineKey is a verification key pinned by kid.
type InlineKey struct {
	Algorithm string
	Key       any
}

type givenKeySet struct {
	jwks *keyfunc.JWKS
}

// NewInlineKeySet builds a resolver over a static kid -> key map.
func NewInlineKeySet(keys map[string]InlineKey) KeyResolver {
	given := make(map[string]keyfunc.GivenKey, len(keys))
	for kid, key := range keys {
		given[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
			Algorithm: key.Algorithm,
		})
	}
	return &givenKeySet{jwks: keyfunc.NewGiven(given)}
}

func (g *givenKeySet) ResolveKey(token *jwt.Token) (any, error) {
	key, err := g.jwks.Keyfunc(token)
	if err != nil {
		return nil, ErrJWKSMissingKeys
	}
	return key, nil
}

// RemoteKeySet fetches a JWKS document on demand and caches it for a
// configurable TTL. Concurrent cold fetches are tolerated: both writers fetch
// the same authoritative document and the last one wins.
type RemoteKeySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	logger Logger

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

// RemoteKeySetOption customizes the remote key set.
type RemoteKeySetOption func(*RemoteKeySet)

// WithJWKSHTTPClient overrides the HTTP client used for fetches.
func WithJWKSHTTPClient(client *http.Client) RemoteKeySetOption {
	return func(r *RemoteKeySet) {
		if client != nil {
			r.client = client
		}
	}
}

// WithJWKSLogger overrides the default logger.
func WithJWKSLogger(l Logger) RemoteKeySetOption {
	return func(r *RemoteKeySet) {
		r.logger = normalizeLogger(l)
	}
}

// NewRemoteKeySet creates a lazily fetched, TTL-refreshed JWKS resolver.
func NewRemoteKeySet(url string, ttl time.Duration, opts ...RemoteKeySetOption) *RemoteKeySet {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	r := &RemoteKeySet{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// ResolveKey implements KeyResolver. The first call fetches the document;
// later calls hit the cache, refreshed in the background at the TTL.
func (r *RemoteKeySet) ResolveKey(token *jwt.Token) (any, error) {
	jwks, err := r.keySet()
	if err != nil {
		return nil, err
	}

	key, err := jwks.Keyfunc(token)
	if err != nil {
		return nil, ErrJWKSMissingKeys
	}

	return key, nil
}

func (r *RemoteKeySet) keySet() (*keyfunc.JWKS, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.jwks != nil {
		return r.jwks, nil
	}

	jwks, err := keyfunc.Get(r.url, keyfunc.Options{
		Client: r.client,
		RefreshErrorHandler: func(err error) {
			r.logger.Warn("JWKS background refresh failed", "url", r.url, "error", err)
		},
		RefreshInterval:   r.ttl,
		RefreshRateLimit:  r.ttl / 2,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		r.logger.Error("JWKS fetch failed", "url", r.url, "error", err)
		clone := ErrJWKSFetchFailed.Clone()
		clone.Source = err
		return nil, clone
	}

	if jwks.Len() == 0 {
		return nil, ErrJWKSMissingKeys
	}

	r.jwks = jwks
	return r.jwks, nil
}
