package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// TextCodeInvalidCSRF is the machine-readable code carried by every CSRF
// rejection.
const TextCodeInvalidCSRF = "invalid_csrf"

// ErrInvalidCSRF is returned when a state-changing request carries a missing,
// mismatched, or expired token.
var ErrInvalidCSRF = goerrors.New("CSRF token invalid", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInvalidCSRF).
	WithCode(goerrors.CodeForbidden)

// DefaultFormFieldName is the form field checked for the token.
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the request header checked for the token.
const DefaultHeaderName = "X-CSRF-Token"

// DefaultAnonCookieName is the cookie that keys anonymous visitors. Minted on
// the first Token call so anonymous tokens bind to the visitor, not to a
// possibly shared client IP.
const DefaultAnonCookieName = "csrf_session"

// Config configures the guard.
type Config struct {
	// SecureKey signs tokens. Must be at least 32 bytes. When empty, an
	// ephemeral key is generated, which invalidates tokens on restart.
	SecureKey []byte

	// Expiration bounds token age. Defaults to 24h.
	Expiration time.Duration

	// FormFieldName and HeaderName override the token lookup locations.
	FormFieldName string
	HeaderName    string

	// AnonCookieName overrides the anonymous visitor cookie name.
	AnonCookieName string

	// SecureCookie marks the anonymous visitor cookie Secure.
	SecureCookie bool

	// SafeMethods never require a token. Defaults to GET, HEAD, OPTIONS,
	// TRACE.
	SafeMethods []string

	// Skip lets callers exempt individual requests.
	Skip func(router.Context) bool
}

// Guard mints and validates session-bound, HMAC-signed CSRF tokens. Tokens
// are stateless: the signature covers a timestamp, a nonce, and the session
// key, so no server side storage is needed.
type Guard struct {
	cfg Config
}

// New creates a guard. An undersized secure key is rejected rather than
// silently truncated.
func New(cfg Config) (*Guard, error) {
	if len(cfg.SecureKey) == 0 {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate CSRF key")
		}
		cfg.SecureKey = key
	} else if len(cfg.SecureKey) < 32 {
		return nil, goerrors.New(
			fmt.Sprintf("CSRF secure key must be at least 32 bytes, got %d", len(cfg.SecureKey)),
			goerrors.CategoryBadInput,
		)
	}

	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.AnonCookieName == "" {
		cfg.AnonCookieName = DefaultAnonCookieName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	return &Guard{cfg: cfg}, nil
}

// Token mints a token bound to the caller's session. Anonymous callers get a
// visitor cookie on the response so the binding survives shared IPs.
func (g *Guard) Token(c router.Context) (string, error) {
	key, err := g.ensureSessionKey(c)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate CSRF nonce")
	}

	payload := fmt.Sprintf("%d:%s:%s",
		time.Now().UTC().Unix(),
		hex.EncodeToString(nonce),
		key,
	)

	mac := hmac.New(sha256.New, g.cfg.SecureKey)
	mac.Write([]byte(payload))

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(mac.Sum(nil)))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// Validate checks the token on state-changing requests. Safe methods always
// pass. Every failure maps to ErrInvalidCSRF so callers cannot distinguish
// missing from forged tokens.
func (g *Guard) Validate(c router.Context) error {
	if g.cfg.Skip != nil && g.cfg.Skip(c) {
		return nil
	}

	method := strings.ToUpper(c.Method())
	if slices.Contains(g.cfg.SafeMethods, method) {
		return nil
	}

	token := g.extract(c)
	if token == "" {
		return ErrInvalidCSRF
	}

	return g.verify(c, token)
}

// Middleware wraps Validate as route middleware.
func (g *Guard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if err := g.Validate(c); err != nil {
				return err
			}
			return next(c)
		}
	}
}

func (g *Guard) verify(c router.Context, token string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidCSRF
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrInvalidCSRF
	}

	timestampStr, nonceHex, boundSession, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrInvalidCSRF
	}
	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrInvalidCSRF
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrInvalidCSRF
	}

	payload := strings.Join(parts[:3], ":")
	mac := hmac.New(sha256.New, g.cfg.SecureKey)
	mac.Write([]byte(payload))

	if !hmac.Equal(signature, mac.Sum(nil)) {
		return ErrInvalidCSRF
	}

	if subtle.ConstantTimeCompare([]byte(boundSession), []byte(g.sessionKey(c))) != 1 {
		return ErrInvalidCSRF
	}

	if g.cfg.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(g.cfg.Expiration)
		if time.Now().UTC().After(expiresAt) {
			return ErrInvalidCSRF
		}
	}

	return nil
}

func (g *Guard) extract(c router.Context) string {
	if token := c.GetString(g.cfg.HeaderName, ""); token != "" {
		return token
	}
	return c.FormValue(g.cfg.FormFieldName)
}

// sessionKey derives the binding key for the current caller. Requests with a
// session or known user bind to it, anonymous requests bind to the visitor
// cookie, and the client IP is the last resort for clients that dropped the
// cookie.
func (g *Guard) sessionKey(c router.Context) string {
	if key := localsKey(c); key != "" {
		return key
	}

	if anon := c.Cookies(g.cfg.AnonCookieName); anon != "" {
		return "csrf_anon_" + anon
	}

	return "csrf_ip_" + c.IP()
}

// ensureSessionKey is sessionKey plus minting: when the caller has neither a
// session nor a visitor cookie, a new visitor id is generated and set on the
// response.
func (g *Guard) ensureSessionKey(c router.Context) (string, error) {
	if key := localsKey(c); key != "" {
		return key, nil
	}

	if anon := c.Cookies(g.cfg.AnonCookieName); anon != "" {
		return "csrf_anon_" + anon, nil
	}

	id := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, id); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate CSRF visitor id")
	}
	anon := hex.EncodeToString(id)

	c.Cookie(&router.Cookie{
		Name:     g.cfg.AnonCookieName,
		Value:    anon,
		Path:     "/",
		Expires:  time.Now().Add(g.cfg.Expiration),
		HTTPOnly: true,
		Secure:   g.cfg.SecureCookie,
		SameSite: "Lax",
	})

	return "csrf_anon_" + anon, nil
}

func localsKey(c router.Context) string {
	if sessionID := c.Locals("session_id"); sessionID != nil {
		if id, ok := sessionID.(string); ok && id != "" {
			return "csrf_" + id
		}
	}

	if userID := c.Locals("user_id"); userID != nil {
		if id, ok := userID.(string); ok && id != "" {
			return "csrf_user_" + id
		}
	}

	return ""
}
