package auth

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/oklog/ulid/v2"
)

// SessionRecord is the server-side state behind an opaque session cookie.
type SessionRecord struct {
	ID        string    `json:"id"`
	Principal Principal `json:"principal"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore persists opaque session records. Get returns (nil, nil) for an
// unknown id. Implementations must be safe for concurrent use.
type SessionStore interface {
	Create(ctx context.Context, rec SessionRecord) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

// CookieStrategy keeps session state server-side; the cookie carries only an
// opaque identifier.
type CookieStrategy struct {
	store  SessionStore
	cookie CookieSettings
	maxAge time.Duration
	logger Logger
	now    func() time.Time
}

// CookieStrategyOption customizes the strategy.
type CookieStrategyOption func(*CookieStrategy)

// WithCookieStrategyClock injects a custom clock (useful for tests).
func WithCookieStrategyClock(clock func() time.Time) CookieStrategyOption {
	return func(s *CookieStrategy) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithCookieStrategyLogger overrides the default logger.
func WithCookieStrategyLogger(l Logger) CookieStrategyOption {
	return func(s *CookieStrategy) {
		s.logger = normalizeLogger(l)
	}
}

// NewCookieStrategy creates the opaque cookie-session strategy.
func NewCookieStrategy(store SessionStore, cookie CookieSettings, maxAge time.Duration, opts ...CookieStrategyOption) *CookieStrategy {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	s := &CookieStrategy{
		store:  store,
		cookie: cookie.normalize("auth_session"),
		maxAge: maxAge,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Name implements SessionStrategy.
func (s *CookieStrategy) Name() string { return StrategyCookie }

// Issue implements SessionStrategy.
func (s *CookieStrategy) Issue(c router.Context, principal Principal) (*Session, error) {
	now := s.now()
	rec := SessionRecord{
		ID:        newSessionID(),
		Principal: principal,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.maxAge),
	}

	if err := s.store.Create(c.Context(), rec); err != nil {
		return nil, err
	}

	writeCookie(c, s.cookie, rec.ID, rec.ExpiresAt)

	return &Session{
		User:      UserFromPrincipal(principal),
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		Strategy:  StrategyCookie,
		Token:     rec.ID,
	}, nil
}

// Resolve implements SessionStrategy.
func (s *CookieStrategy) Resolve(c router.Context) (*Session, error) {
	id := c.Cookies(s.cookie.Name)
	if id == "" {
		return nil, nil
	}

	rec, err := s.store.Get(c.Context(), id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		clearCookie(c, s.cookie)
		return nil, nil
	}

	if s.now().After(rec.ExpiresAt) {
		if err := s.store.Delete(c.Context(), id); err != nil {
			s.logger.Warn("failed to delete expired session", "id", id, "error", err)
		}
		clearCookie(c, s.cookie)
		return nil, nil
	}

	return &Session{
		User:      UserFromPrincipal(rec.Principal),
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		Strategy:  StrategyCookie,
		Token:     rec.ID,
	}, nil
}

// Refresh implements SessionStrategy. The old record is removed and a fresh
// session is issued with a new opaque identifier.
func (s *CookieStrategy) Refresh(c router.Context, principal Principal) (*Session, error) {
	if id := c.Cookies(s.cookie.Name); id != "" {
		if err := s.store.Delete(c.Context(), id); err != nil {
			s.logger.Warn("failed to delete refreshed session", "id", id, "error", err)
		}
	}
	return s.Issue(c, principal)
}

// Clear implements SessionStrategy.
func (s *CookieStrategy) Clear(c router.Context) error {
	id := c.Cookies(s.cookie.Name)
	clearCookie(c, s.cookie)
	if id == "" {
		return nil
	}
	return s.store.Delete(c.Context(), id)
}

func newSessionID() string {
	return ulid.Make().String()
}

// MemorySessionStore is a mutex-guarded in-process store, suitable for tests
// and single-node deployments.
type MemorySessionStore struct {
	mu   sync.RWMutex
	recs map[string]SessionRecord
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{recs: map[string]SessionRecord{}}
}

// Create implements SessionStore.
func (m *MemorySessionStore) Create(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

// Get implements SessionStore.
func (m *MemorySessionStore) Get(_ context.Context, id string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Delete implements SessionStore.
func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}
