package auth

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	router "github.com/goliatone/go-router"
)

// CSRFGuard validates state-changing requests before any provider runs.
type CSRFGuard interface {
	Validate(c router.Context) error
}

// SignInResult is returned by the SignIn callback to allow or deny a
// successful provider authorization.
type SignInResult struct {
	Allow       bool
	Reason      string
	RedirectURL string
}

// Callbacks are application hooks invoked during the authentication flow.
// All of them are optional.
type Callbacks struct {
	// SignIn runs after a provider authorized the user and before a session
	// is created. Returning Allow=false denies the sign in.
	SignIn func(ctx context.Context, user *User, providerID string) (*SignInResult, error)
	// Session runs every time a session is created or refreshed and can
	// enrich session data.
	Session func(ctx context.Context, session *Session) error
}

// UserResolver loads a user by id. The remember token flow uses it to rebuild
// the principal when bootstrapping a session from a remember cookie.
type UserResolver func(ctx context.Context, userID string) (*User, error)

// Manager coordinates providers, session strategies, remember tokens, and
// lifecycle callbacks behind a single entry point.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string

	strategy  SessionStrategy
	remember  *RememberService
	csrf      CSRFGuard
	callbacks Callbacks
	sink      Sink
	resolver  UserResolver
	updateAge time.Duration
	logger    Logger
	now       func() time.Time
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithProviders registers providers in declaration order.
func WithProviders(providers ...Provider) ManagerOption {
	return func(m *Manager) {
		for _, p := range providers {
			m.register(p)
		}
	}
}

// WithRemember enables remember token support.
func WithRemember(service *RememberService) ManagerOption {
	return func(m *Manager) { m.remember = service }
}

// WithCSRFGuard enables CSRF validation on state-changing operations.
func WithCSRFGuard(guard CSRFGuard) ManagerOption {
	return func(m *Manager) { m.csrf = guard }
}

// WithCallbacks installs the application lifecycle hooks.
func WithCallbacks(cb Callbacks) ManagerOption {
	return func(m *Manager) { m.callbacks = cb }
}

// WithSink installs the event sink.
func WithSink(sink Sink) ManagerOption {
	return func(m *Manager) { m.sink = normalizeSink(sink) }
}

// WithUserResolver installs the user lookup used by the remember flow.
func WithUserResolver(r UserResolver) ManagerOption {
	return func(m *Manager) { m.resolver = r }
}

// WithUpdateAge sets the session age after which ResolveSession transparently
// refreshes the session. Zero disables lazy refresh.
func WithUpdateAge(d time.Duration) ManagerOption {
	return func(m *Manager) { m.updateAge = d }
}

// WithManagerLogger overrides the default logger.
func WithManagerLogger(l Logger) ManagerOption {
	return func(m *Manager) { m.logger = normalizeLogger(l) }
}

// WithManagerClock injects a custom clock.
func WithManagerClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewManager creates an authentication manager using strategy for sessions.
func NewManager(strategy SessionStrategy, opts ...ManagerOption) (*Manager, error) {
	if strategy == nil {
		return nil, goerrors.New("session strategy is required", goerrors.CategoryBadInput)
	}

	m := &Manager{
		providers: map[string]Provider{},
		strategy:  strategy,
		sink:      noopSink{},
		logger:    defLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

func (m *Manager) register(p Provider) {
	if p == nil || p.ID() == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[p.ID()]; !ok {
		m.order = append(m.order, p.ID())
	}
	m.providers[p.ID()] = p
}

// RegisterProvider adds or replaces a provider at runtime.
func (m *Manager) RegisterProvider(p Provider) {
	m.register(p)
}

// Provider returns the provider registered under id.
func (m *Manager) Provider(id string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Providers lists registered providers in registration order.
func (m *Manager) Providers() []ProviderInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(m.order))
	for _, id := range m.order {
		p := m.providers[id]
		out = append(out, ProviderInfo{ID: p.ID(), Name: p.Name(), Type: p.Type()})
	}
	return out
}

// Strategy exposes the configured session strategy.
func (m *Manager) Strategy() SessionStrategy { return m.strategy }

// SignIn authenticates credentials against the named provider and, on
// success, establishes a session. CSRF validation runs before the provider is
// ever invoked. The returned string is the redirect target chosen by the
// SignIn callback, empty when none.
func (m *Manager) SignIn(c router.Context, providerID string, creds Credentials) (*Session, string, error) {
	if err := m.validateCSRF(c); err != nil {
		return nil, "", err
	}

	p, err := m.Provider(providerID)
	if err != nil {
		return nil, "", err
	}

	authorizer, ok := p.(CredentialsAuthorizer)
	if !ok {
		return nil, "", ErrMethodNotAllowed
	}

	ctx := c.Context()

	user, err := authorizer.Authorize(ctx, creds)
	if err != nil {
		m.emitSignIn(ctx, providerID, creds.Identifier(), "", false, TextCode(err))
		return nil, "", err
	}
	if user == nil {
		m.emitSignIn(ctx, providerID, creds.Identifier(), "", false, TextCodeInvalidCredentials)
		return nil, "", ErrInvalidCredentials
	}

	return m.establishSession(c, providerID, user)
}

// Register creates a new account through the named provider, which must
// implement Registrar, then signs the new user in. The session lifecycle is
// identical to SignIn: callbacks run, the strategy issues a session, and the
// sign in event fires.
func (m *Manager) Register(c router.Context, providerID string, creds Credentials) (*Session, string, error) {
	if err := m.validateCSRF(c); err != nil {
		return nil, "", err
	}

	p, err := m.Provider(providerID)
	if err != nil {
		return nil, "", err
	}

	registrar, ok := p.(Registrar)
	if !ok {
		return nil, "", ErrMethodNotAllowed
	}

	user, err := registrar.Register(c.Context(), creds)
	if err != nil {
		return nil, "", err
	}

	return m.establishSession(c, providerID, user)
}

// AuthorizationURL starts an OAuth flow with the named provider.
func (m *Manager) AuthorizationURL(c router.Context, providerID string, req AuthorizationRequest) (string, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return "", err
	}

	authorizer, ok := p.(OAuthAuthorizer)
	if !ok {
		return "", ErrMethodNotAllowed
	}

	return authorizer.AuthorizationURL(c.Context(), req)
}

// HandleOAuthCallback completes an OAuth flow and establishes a session for
// the mapped user.
func (m *Manager) HandleOAuthCallback(c router.Context, providerID, code, state string) (*Session, string, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return nil, "", err
	}

	authorizer, ok := p.(OAuthAuthorizer)
	if !ok {
		return nil, "", ErrMethodNotAllowed
	}

	ctx := c.Context()

	result, err := authorizer.HandleCallback(ctx, code, state)
	if err != nil {
		m.emitSignIn(ctx, providerID, "", "", false, TextCode(err))
		return nil, "", err
	}

	session, redirect, err := m.establishSession(c, providerID, result.User)
	if err != nil {
		return nil, "", err
	}

	// The SignIn callback wins over the redirect carried in the OAuth state.
	if redirect == "" {
		redirect = result.RedirectURL
	}

	return session, redirect, nil
}

// StartEmailSignIn sends a magic link through the named email provider.
func (m *Manager) StartEmailSignIn(c router.Context, providerID, identifier string) error {
	if err := m.validateCSRF(c); err != nil {
		return err
	}

	p, err := m.Provider(providerID)
	if err != nil {
		return err
	}

	authorizer, ok := p.(EmailAuthorizer)
	if !ok {
		return ErrMethodNotAllowed
	}

	return authorizer.StartSignIn(c.Context(), identifier)
}

// ConsumeEmailToken redeems a magic link token and establishes a session.
func (m *Manager) ConsumeEmailToken(c router.Context, providerID, identifier, token string) (*Session, string, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return nil, "", err
	}

	authorizer, ok := p.(EmailAuthorizer)
	if !ok {
		return nil, "", ErrMethodNotAllowed
	}

	ctx := c.Context()

	user, err := authorizer.ConsumeToken(ctx, identifier, token)
	if err != nil {
		m.emitSignIn(ctx, providerID, identifier, "", false, TextCode(err))
		return nil, "", err
	}

	return m.establishSession(c, providerID, user)
}

// SignOut tears down the session, the remember token, and fires the sign out
// event.
func (m *Manager) SignOut(c router.Context) error {
	ctx := c.Context()

	var userID string
	if session, err := m.strategy.Resolve(c); err == nil && session != nil {
		if p, perr := session.Principal(); perr == nil {
			userID = p.ID
		}
	}

	if err := m.strategy.Clear(c); err != nil {
		return err
	}

	if m.remember != nil {
		if err := m.remember.Clear(c); err != nil {
			m.logger.Warn("failed to clear remember token: %v", err)
		}
	}

	m.emit(func(ctx context.Context) {
		m.sink.SignedOut(ctx, SignOutEvent{
			UserID:    userID,
			Strategy:  m.strategy.Name(),
			Timestamp: m.now(),
		})
	}, ctx)

	return nil
}

// ResolveSession resolves the current session. When the primary session is
// absent it falls back to the remember token, and when the session is older
// than the configured update age it is transparently refreshed.
func (m *Manager) ResolveSession(c router.Context) (*Session, error) {
	session, err := m.strategy.Resolve(c)
	if err != nil {
		return nil, err
	}

	ctx := c.Context()

	if session == nil {
		session, err = m.resolveFromRemember(c)
		if err != nil || session == nil {
			return nil, err
		}

		m.emitSessionResolved(ctx, session, true)
		return session, nil
	}

	refreshed := false
	if m.updateAge > 0 && session.Age(m.now()) > m.updateAge {
		principal, err := session.Principal()
		if err != nil {
			return nil, err
		}
		session, err = m.refreshSession(c, principal, session.Data)
		if err != nil {
			return nil, err
		}
		refreshed = true
	}

	m.emitSessionResolved(ctx, session, refreshed)
	return session, nil
}

// UpdateSession applies mutate to the current session and reissues it. The
// Session callback runs again on the updated session.
func (m *Manager) UpdateSession(c router.Context, mutate func(*Session) error) (*Session, error) {
	session, err := m.strategy.Resolve(c)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrUnauthenticated
	}

	if mutate != nil {
		if err := mutate(session); err != nil {
			return nil, err
		}
	}

	principal, err := session.Principal()
	if err != nil {
		return nil, err
	}
	return m.refreshSession(c, principal, session.Data)
}

func (m *Manager) establishSession(c router.Context, providerID string, user *User) (*Session, string, error) {
	ctx := c.Context()

	redirect := ""
	if m.callbacks.SignIn != nil {
		result, err := m.callbacks.SignIn(ctx, user, providerID)
		if err != nil {
			return nil, "", err
		}
		if result != nil && !result.Allow {
			denied := ErrSignInDenied.Clone()
			if result.Reason != "" {
				denied = denied.WithMetadata(map[string]any{"reason": result.Reason})
			}
			m.emitSignIn(ctx, providerID, user.Email, user.ID, false, TextCodeSignInDenied)
			return nil, "", denied
		}
		if result != nil {
			redirect = result.RedirectURL
		}
	}

	principal, err := user.ToPrincipal()
	if err != nil {
		return nil, "", err
	}

	session, err := m.issueSession(c, principal, nil)
	if err != nil {
		return nil, "", err
	}
	session.User = user

	if m.remember != nil {
		if _, err := m.remember.Issue(c, user.ID); err != nil {
			m.logger.Warn("failed to issue remember token: %v", err)
		}
	}

	m.emitSignIn(ctx, providerID, user.Email, user.ID, true, "")
	return session, redirect, nil
}

func (m *Manager) issueSession(c router.Context, principal Principal, data map[string]any) (*Session, error) {
	session, err := m.strategy.Issue(c, principal)
	if err != nil {
		return nil, err
	}

	for k, v := range data {
		session.AddData(k, v)
	}

	if m.callbacks.Session != nil {
		if err := m.callbacks.Session(c.Context(), session); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func (m *Manager) refreshSession(c router.Context, principal Principal, data map[string]any) (*Session, error) {
	session, err := m.strategy.Refresh(c, principal)
	if err != nil {
		return nil, err
	}

	for k, v := range data {
		session.AddData(k, v)
	}

	if m.callbacks.Session != nil {
		if err := m.callbacks.Session(c.Context(), session); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func (m *Manager) resolveFromRemember(c router.Context) (*Session, error) {
	if m.remember == nil {
		return nil, nil
	}

	token, err := m.remember.Resolve(c)
	if err != nil {
		if goerrors.Is(err, ErrRememberTokenStale) {
			return nil, err
		}
		m.logger.Warn("remember token resolution failed: %v", err)
		return nil, nil
	}
	if token == nil {
		return nil, nil
	}

	ctx := c.Context()

	var user *User
	if m.resolver != nil {
		user, err = m.resolver(ctx, token.UserID)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		user = &User{ID: token.UserID}
	}

	principal, err := user.ToPrincipal()
	if err != nil {
		return nil, err
	}

	session, err := m.issueSession(c, principal, nil)
	if err != nil {
		return nil, err
	}
	session.User = user

	return session, nil
}

func (m *Manager) validateCSRF(c router.Context) error {
	if m.csrf == nil {
		return nil
	}
	return m.csrf.Validate(c)
}

func (m *Manager) emitSessionResolved(ctx context.Context, session *Session, refreshed bool) {
	var userID string
	if p, err := session.Principal(); err == nil {
		userID = p.ID
	}

	m.emit(func(ctx context.Context) {
		m.sink.SessionResolved(ctx, SessionEvent{
			UserID:    userID,
			Strategy:  m.strategy.Name(),
			Refreshed: refreshed,
			Timestamp: m.now(),
		})
	}, ctx)
}

func (m *Manager) emitSignIn(ctx context.Context, providerID, email, userID string, success bool, reason string) {
	m.emit(func(ctx context.Context) {
		m.sink.SignedIn(ctx, SignInEvent{
			Provider:  providerID,
			UserID:    userID,
			Email:     email,
			Strategy:  m.strategy.Name(),
			Success:   success,
			Reason:    reason,
			Timestamp: m.now(),
		})
	}, ctx)
}

// emit dispatches a sink call on its own goroutine. A panicking sink must not
// take the process down, so the goroutine recovers and logs.
func (m *Manager) emit(fn func(context.Context), ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Warn("event sink panicked: %v", r)
			}
		}()
		fn(detached)
	}()
}
