package auth

import (
	goerrors "github.com/goliatone/go-errors"
	router "github.com/goliatone/go-router"
)

// SessionContextKey is the Locals key under which the resolved session is
// stored by the middleware.
var SessionContextKey = "auth_session"

// MiddlewareConfig configures the session middleware.
type MiddlewareConfig struct {
	// Optional lets unauthenticated requests through without a session.
	Optional bool
	// ErrorHandler renders authentication failures. Defaults to returning
	// the error to the router's error chain.
	ErrorHandler func(c router.Context, err error) error
}

// RequireSession returns middleware that resolves the current session and
// exposes its principal on the request. Unauthenticated requests are rejected
// unless cfg.Optional is set.
func RequireSession(manager *Manager, cfg ...MiddlewareConfig) router.MiddlewareFunc {
	config := MiddlewareConfig{}
	if len(cfg) > 0 {
		config = cfg[0]
	}

	fail := config.ErrorHandler
	if fail == nil {
		fail = func(_ router.Context, err error) error { return err }
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			session, err := manager.ResolveSession(c)
			if err != nil || session == nil {
				if config.Optional {
					return next(c)
				}
				if err == nil {
					err = ErrUnauthenticated
				}
				c.SetHeader("WWW-Authenticate", challengeFor(err))
				return fail(c, err)
			}

			c.Locals(SessionContextKey, session)

			if principal, perr := session.Principal(); perr == nil {
				c.SetContext(WithPrincipal(c.Context(), &principal))
				c.SetContext(WithSession(c.Context(), session))
			}

			return next(c)
		}
	}
}

// challengeFor builds the WWW-Authenticate value for a rejected request. A
// stale remember token is called out so clients know the credential they
// presented is dead, not merely missing.
func challengeFor(err error) string {
	if goerrors.Is(err, ErrRememberTokenStale) {
		return `Bearer realm="session", error="invalid_token", error_description="remember token is stale"`
	}
	return `Bearer realm="session"`
}

// SessionFromLocals retrieves the session stored by RequireSession.
func SessionFromLocals(c router.Context) (*Session, bool) {
	s, ok := c.Locals(SessionContextKey).(*Session)
	return s, ok && s != nil
}
