package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// JWTCallback may enrich or modify the claim set before signing. It runs on
// every issuance and every refresh. Protected claims (sub, iss, aud, iat,
// exp) are guarded; mutating them fails the issuance.
type JWTCallback func(ctx context.Context, principal Principal, claims *Claims) error

// Issuer signs claim sets for principals.
type Issuer struct {
	method   jwt.SigningMethod
	key      any
	ttl      time.Duration
	issuer   string
	audience []string
	callback JWTCallback
	logger   Logger
	now      func() time.Time
}

// IssuerOption customizes the issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock injects a custom clock (useful for tests).
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if clock != nil {
			i.now = clock
		}
	}
}

// WithIssuerLogger overrides the default logger.
func WithIssuerLogger(l Logger) IssuerOption {
	return func(i *Issuer) {
		i.logger = normalizeLogger(l)
	}
}

// WithJWTCallback sets the claims enrichment callback.
func WithJWTCallback(cb JWTCallback) IssuerOption {
	return func(i *Issuer) {
		i.callback = cb
	}
}

// WithSigningMethod overrides HS256 with another method. The key must match:
// []byte for HMAC, *rsa.PrivateKey for RS256.
func WithSigningMethod(method jwt.SigningMethod, key any) IssuerOption {
	return func(i *Issuer) {
		if method != nil {
			i.method = method
		}
		if key != nil {
			i.key = key
		}
	}
}

// NewIssuer creates an Issuer signing with HS256 and the given secret unless
// overridden with WithSigningMethod.
func NewIssuer(secret []byte, ttl time.Duration, issuer string, audience []string, opts ...IssuerOption) (*Issuer, error) {
	i := &Issuer{
		method:   jwt.SigningMethodHS256,
		key:      secret,
		ttl:      ttl,
		issuer:   issuer,
		audience: audience,
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}

	if secretBytes, ok := i.key.([]byte); ok && len(secretBytes) == 0 {
		return nil, ErrMissingJWTSecret
	}
	if i.key == nil {
		return nil, ErrMissingJWTSecret
	}
	if i.ttl <= 0 {
		i.ttl = 24 * time.Hour
	}

	return i, nil
}

// Issue builds a claim set for the principal, applies the jwt callback, and
// signs it. Returns the compact token and the final claims.
func (i *Issuer) Issue(ctx context.Context, principal Principal) (string, *Claims, error) {
	if principal.ID == "" {
		return "", nil, goerrors.New("principal id must not be empty", goerrors.CategoryValidation)
	}

	claims := claimsFromPrincipal(principal, i.issuer, i.audience, i.now(), i.ttl)
	ensureTokenID(&claims.RegisteredClaims)

	if i.callback != nil {
		snapshot := captureImmutableClaims(claims)
		if err := i.callback(ctx, principal, claims); err != nil {
			i.logger.Error("jwt callback failed", "error", err)
			return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "jwt callback failed")
		}
		if err := snapshot.validate(claims); err != nil {
			i.logger.Error("jwt callback mutated immutable claims", "error", err)
			return "", nil, err
		}
	}

	token, err := i.SignClaims(claims)
	if err != nil {
		return "", nil, err
	}

	return token, claims, nil
}

// SignClaims signs an arbitrary claim set with the configured key.
func (i *Issuer) SignClaims(claims *Claims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(i.method, claims)

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// TTL exposes the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
