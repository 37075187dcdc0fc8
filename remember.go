package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	router "github.com/goliatone/go-router"
)

// RememberToken is a long-lived, single-use credential that can bootstrap a
// session after the primary session expired.
type RememberToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token lifetime elapsed.
func (t RememberToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// RememberTokenStore persists remember tokens. Rotate is compare-and-swap on
// the old token: exactly one concurrent caller wins, the rest observe
// (nil, nil) and must treat the token as stale.
type RememberTokenStore interface {
	Save(ctx context.Context, token RememberToken) error
	Read(ctx context.Context, token string) (*RememberToken, error)
	Rotate(ctx context.Context, oldToken string, next RememberToken) (*RememberToken, error)
	Remove(ctx context.Context, token string) error
}

// RememberDuration is the default remember token lifetime.
var RememberDuration = 30 * 24 * time.Hour

// RememberService issues, rotates, and clears remember cookies. Every
// successful use rotates the token so a replayed cookie surfaces as stale.
type RememberService struct {
	store    RememberTokenStore
	cookie   CookieSettings
	duration time.Duration
	logger   Logger
	now      func() time.Time
}

// RememberOption customizes the service.
type RememberOption func(*RememberService)

// WithRememberCookie overrides cookie attributes.
func WithRememberCookie(settings CookieSettings) RememberOption {
	return func(s *RememberService) {
		s.cookie = settings.normalize("auth_remember")
	}
}

// WithRememberDuration overrides the token lifetime.
func WithRememberDuration(d time.Duration) RememberOption {
	return func(s *RememberService) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithRememberClock injects a custom clock.
func WithRememberClock(clock func() time.Time) RememberOption {
	return func(s *RememberService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithRememberLogger overrides the default logger.
func WithRememberLogger(l Logger) RememberOption {
	return func(s *RememberService) {
		s.logger = normalizeLogger(l)
	}
}

// NewRememberService creates a remember token service backed by store.
func NewRememberService(store RememberTokenStore, opts ...RememberOption) *RememberService {
	s := &RememberService{
		store:    store,
		cookie:   CookieSettings{}.normalize("auth_remember"),
		duration: RememberDuration,
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

// Issue mints a fresh remember token for the user and sets the cookie.
func (s *RememberService) Issue(c router.Context, userID string) (*RememberToken, error) {
	raw, err := generateRememberToken()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate remember token")
	}

	token := RememberToken{
		Token:     raw,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.duration),
	}

	if err := s.store.Save(c.Context(), token); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist remember token")
	}

	writeCookie(c, s.cookie, raw, token.ExpiresAt)
	return &token, nil
}

// Resolve reads the remember cookie, rotates the token, and returns the
// rotated record. Presenting an unknown or already rotated token clears the
// cookie and returns ErrRememberTokenStale so callers can react to possible
// theft. No cookie means (nil, nil).
func (s *RememberService) Resolve(c router.Context) (*RememberToken, error) {
	raw := c.Cookies(s.cookie.Name)
	if raw == "" {
		return nil, nil
	}

	ctx := c.Context()

	current, err := s.store.Read(ctx, raw)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read remember token")
	}

	if current == nil || current.Expired(s.now()) {
		s.logger.Warn("remember token stale or expired")
		clearCookie(c, s.cookie)
		return nil, ErrRememberTokenStale
	}

	nextRaw, err := generateRememberToken()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate remember token")
	}

	next := RememberToken{
		Token:     nextRaw,
		UserID:    current.UserID,
		ExpiresAt: s.now().Add(s.duration),
	}

	rotated, err := s.store.Rotate(ctx, raw, next)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate remember token")
	}

	if rotated == nil {
		// lost the rotation race, a concurrent request already consumed it
		clearCookie(c, s.cookie)
		return nil, ErrRememberTokenStale
	}

	writeCookie(c, s.cookie, rotated.Token, rotated.ExpiresAt)
	return rotated, nil
}

// Clear removes the remember token and its cookie.
func (s *RememberService) Clear(c router.Context) error {
	raw := c.Cookies(s.cookie.Name)
	clearCookie(c, s.cookie)

	if raw == "" {
		return nil
	}

	if err := s.store.Remove(c.Context(), raw); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove remember token")
	}

	return nil
}

func generateRememberToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemoryRememberStore is a map-backed RememberTokenStore for tests and small
// deployments.
type MemoryRememberStore struct {
	mu     sync.Mutex
	tokens map[string]RememberToken
}

// NewMemoryRememberStore creates an in-memory remember token store.
func NewMemoryRememberStore() *MemoryRememberStore {
	return &MemoryRememberStore{tokens: map[string]RememberToken{}}
}

// Save implements RememberTokenStore.
func (m *MemoryRememberStore) Save(_ context.Context, token RememberToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

// Read implements RememberTokenStore.
func (m *MemoryRememberStore) Read(_ context.Context, token string) (*RememberToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Rotate implements RememberTokenStore. The delete-then-insert happens under
// one lock so only a single caller can claim the old token.
func (m *MemoryRememberStore) Rotate(_ context.Context, oldToken string, next RememberToken) (*RememberToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[oldToken]; !ok {
		return nil, nil
	}

	delete(m.tokens, oldToken)
	m.tokens[next.Token] = next
	return &next, nil
}

// Remove implements RememberTokenStore.
func (m *MemoryRememberStore) Remove(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}
