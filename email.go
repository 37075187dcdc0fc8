package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// VerificationTokenStore persists single-use magic-link tokens.
// Create must invalidate every previously issued, unconsumed token for the
// same identifier. Consume must be atomic: it redeems the token exactly once
// and returns (nil, nil) for unknown, expired, or already consumed tokens.
type VerificationTokenStore interface {
	Create(ctx context.Context, token VerificationToken) error
	Consume(ctx context.Context, identifier, token string) (*VerificationToken, error)
}

// SendVerificationRequest delivers the magic link. Delivery (SMTP, queue) is
// an external collaborator owned by the embedding application.
type SendVerificationRequest func(ctx context.Context, identifier, token string, expiresAt time.Time) error

// EmailProvider signs users in through single-use emailed tokens.
type EmailProvider struct {
	id     string
	name   string
	store  VerificationTokenStore
	send   SendVerificationRequest
	ttl    time.Duration
	logger Logger
	now    func() time.Time

	// UserLookup resolves the identifier into a user after a token is
	// consumed. The default derives a deterministic id from the email.
	UserLookup func(ctx context.Context, identifier string) (*User, error)
}

// EmailProviderOption customizes the provider.
type EmailProviderOption func(*EmailProvider)

// WithEmailTokenTTL overrides the default 15 minute token lifetime.
func WithEmailTokenTTL(ttl time.Duration) EmailProviderOption {
	return func(p *EmailProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithEmailClock injects a custom clock (useful for tests).
func WithEmailClock(clock func() time.Time) EmailProviderOption {
	return func(p *EmailProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithEmailLogger overrides the default logger.
func WithEmailLogger(l Logger) EmailProviderOption {
	return func(p *EmailProvider) {
		p.logger = normalizeLogger(l)
	}
}

// NewEmailProvider creates a magic-link provider.
func NewEmailProvider(id string, store VerificationTokenStore, send SendVerificationRequest, opts ...EmailProviderOption) *EmailProvider {
	if id == "" {
		id = "email"
	}

	p := &EmailProvider{
		id:     id,
		name:   "Email",
		store:  store,
		send:   send,
		ttl:    15 * time.Minute,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if p.UserLookup == nil {
		p.UserLookup = defaultEmailUserLookup
	}

	return p
}

// ID implements Provider.
func (p *EmailProvider) ID() string { return p.id }

// Name implements Provider.
func (p *EmailProvider) Name() string { return p.name }

// Type implements Provider.
func (p *EmailProvider) Type() ProviderType { return ProviderTypeEmail }

// StartSignIn mints a token, persists it (invalidating prior tokens for the
// identifier), and delegates delivery.
func (p *EmailProvider) StartSignIn(ctx context.Context, identifier string) error {
	if err := validation.Validate(identifier, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email identifier")
	}

	token, err := generateVerificationToken()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}

	vt := VerificationToken{
		Identifier: identifier,
		Token:      token,
		ExpiresAt:  p.now().Add(p.ttl),
	}

	if err := p.store.Create(ctx, vt); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verification token")
	}

	if err := p.send(ctx, identifier, token, vt.ExpiresAt); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver verification request")
	}

	return nil
}

// ConsumeToken atomically redeems the token and resolves the user. A consumed
// or expired token never validates again.
func (p *EmailProvider) ConsumeToken(ctx context.Context, identifier, token string) (*User, error) {
	if identifier == "" || token == "" {
		return nil, ErrVerificationTokenInvalid
	}

	vt, err := p.store.Consume(ctx, identifier, token)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}
	if vt == nil || vt.Expired(p.now()) {
		return nil, ErrVerificationTokenInvalid
	}

	return p.UserLookup(ctx, identifier)
}

func defaultEmailUserLookup(_ context.Context, identifier string) (*User, error) {
	id, err := hashid.NewUUID(identifier)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive user id")
	}

	return &User{
		ID:    id.String(),
		Email: identifier,
	}, nil
}

func generateVerificationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemoryVerificationTokenStore keeps at most one live token per identifier,
// which makes the invalidate-prior rule structural.
type MemoryVerificationTokenStore struct {
	mu     sync.Mutex
	tokens map[string]VerificationToken
}

// NewMemoryVerificationTokenStore creates an in-memory verification store.
func NewMemoryVerificationTokenStore() *MemoryVerificationTokenStore {
	return &MemoryVerificationTokenStore{tokens: map[string]VerificationToken{}}
}

// Create implements VerificationTokenStore.
func (m *MemoryVerificationTokenStore) Create(_ context.Context, token VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Identifier] = token
	return nil
}

// Consume implements VerificationTokenStore.
func (m *MemoryVerificationTokenStore) Consume(_ context.Context, identifier, token string) (*VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vt, ok := m.tokens[identifier]
	if !ok || vt.Token != token {
		return nil, nil
	}

	delete(m.tokens, identifier)
	return &vt, nil
}
