package auth

import (
	"time"

	"github.com/goliatone/go-router"
)

// Session strategy identifiers, also exposed in session payloads and config.
const (
	StrategyCookie = "cookie"
	StrategyJWT    = "jwt"
)

// SessionStrategy produces, resolves, refreshes, and invalidates the session
// token that travels with the request. Resolve returns (nil, nil) when the
// request carries no usable session; errors are reserved for real failures.
type SessionStrategy interface {
	Name() string
	Issue(c router.Context, principal Principal) (*Session, error)
	Resolve(c router.Context) (*Session, error)
	Refresh(c router.Context, principal Principal) (*Session, error)
	Clear(c router.Context) error
}

// CookieSettings controls how strategy cookies are written.
type CookieSettings struct {
	Name     string
	Path     string
	Secure   bool
	SameSite string
}

func (cs CookieSettings) normalize(defaultName string) CookieSettings {
	if cs.Name == "" {
		cs.Name = defaultName
	}
	if cs.Path == "" {
		cs.Path = "/"
	}
	if cs.SameSite == "" {
		cs.SameSite = "Lax"
	}
	return cs
}

func writeCookie(c router.Context, cs CookieSettings, value string, expires time.Time) {
	c.Cookie(&router.Cookie{
		Name:     cs.Name,
		Value:    value,
		Path:     cs.Path,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   cs.Secure,
		SameSite: cs.SameSite,
	})
}

func clearCookie(c router.Context, cs CookieSettings) {
	c.Cookie(&router.Cookie{
		Name:     cs.Name,
		Value:    "",
		Path:     cs.Path,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   cs.Secure,
		SameSite: cs.SameSite,
	})
}
