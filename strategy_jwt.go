package auth

import (
	"time"

	"github.com/goliatone/go-router"
)

// JWTStrategy serializes the principal into a signed, stateless cookie via
// the token codec. The jwt callback configured on the Issuer runs on every
// issuance and refresh.
type JWTStrategy struct {
	issuer   *Issuer
	verifier TokenVerifier
	cookie   CookieSettings
	logger   Logger
	now      func() time.Time
}

// JWTStrategyOption customizes the strategy.
type JWTStrategyOption func(*JWTStrategy)

// WithJWTStrategyClock injects a custom clock (useful for tests).
func WithJWTStrategyClock(clock func() time.Time) JWTStrategyOption {
	return func(s *JWTStrategy) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithJWTStrategyLogger overrides the default logger.
func WithJWTStrategyLogger(l Logger) JWTStrategyOption {
	return func(s *JWTStrategy) {
		s.logger = normalizeLogger(l)
	}
}

// NewJWTStrategy creates the signed-JWT-cookie strategy. The cookie name
// defaults to auth_token, distinct from the opaque session cookie.
func NewJWTStrategy(issuer *Issuer, verifier TokenVerifier, cookie CookieSettings, opts ...JWTStrategyOption) *JWTStrategy {
	s := &JWTStrategy{
		issuer:   issuer,
		verifier: verifier,
		cookie:   cookie.normalize("auth_token"),
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Name implements SessionStrategy.
func (s *JWTStrategy) Name() string { return StrategyJWT }

// Issue implements SessionStrategy.
func (s *JWTStrategy) Issue(c router.Context, principal Principal) (*Session, error) {
	token, claims, err := s.issuer.Issue(c.Context(), principal)
	if err != nil {
		return nil, err
	}

	writeCookie(c, s.cookie, token, claims.ExpiryTime())

	return &Session{
		User:      UserFromPrincipal(claims.Principal()),
		IssuedAt:  claims.IssuedTime(),
		ExpiresAt: claims.ExpiryTime(),
		Strategy:  StrategyJWT,
		Token:     token,
	}, nil
}

// Resolve implements SessionStrategy. Verification failures clear the cookie
// and resolve to no session; they never abort the request.
func (s *JWTStrategy) Resolve(c router.Context) (*Session, error) {
	token := c.Cookies(s.cookie.Name)
	if token == "" {
		return nil, nil
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Debug("JWT cookie failed verification", "code", TextCode(err))
		clearCookie(c, s.cookie)
		return nil, nil
	}

	return &Session{
		User:      UserFromPrincipal(claims.Principal()),
		IssuedAt:  claims.IssuedTime(),
		ExpiresAt: claims.ExpiryTime(),
		Strategy:  StrategyJWT,
		Token:     token,
	}, nil
}

// Refresh implements SessionStrategy: the principal is re-signed into a new
// token and the cookie replaced.
func (s *JWTStrategy) Refresh(c router.Context, principal Principal) (*Session, error) {
	return s.Issue(c, principal)
}

// Clear implements SessionStrategy.
func (s *JWTStrategy) Clear(c router.Context) error {
	clearCookie(c, s.cookie)
	return nil
}
