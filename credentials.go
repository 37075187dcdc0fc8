package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MaxLoginAttempts is the maximum number of attempts a user gets in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 24 * time.Hour

// StoredUser is the persisted user record the credentials provider verifies
// against. The embedding application owns its storage.
type StoredUser struct {
	User
	PasswordHash   string
	LoginAttempts  int
	LoginAttemptAt *time.Time
}

// UserStore is the persistence contract for the credentials provider.
// FindByIdentifier returns (nil, nil) for unknown identifiers.
type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*StoredUser, error)
	CreateUser(ctx context.Context, user *StoredUser) error
	TrackAttemptedLogin(ctx context.Context, user *StoredUser) error
	TrackSuccessfulLogin(ctx context.Context, user *StoredUser) error
}

// CredentialsProvider verifies password credentials against a UserStore.
type CredentialsProvider struct {
	id     string
	name   string
	store  UserStore
	logger Logger
	now    func() time.Time

	// RegisterHook overrides the default first-time-signup behavior.
	RegisterHook func(ctx context.Context, creds Credentials) (*User, error)
}

// CredentialsProviderOption customizes the provider.
type CredentialsProviderOption func(*CredentialsProvider)

// WithCredentialsClock injects a custom clock (useful for tests).
func WithCredentialsClock(clock func() time.Time) CredentialsProviderOption {
	return func(p *CredentialsProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithCredentialsLogger overrides the default logger.
func WithCredentialsLogger(l Logger) CredentialsProviderOption {
	return func(p *CredentialsProvider) {
		p.logger = normalizeLogger(l)
	}
}

// NewCredentialsProvider creates a password provider with the given id.
func NewCredentialsProvider(id string, store UserStore, opts ...CredentialsProviderOption) *CredentialsProvider {
	if id == "" {
		id = "credentials"
	}

	p := &CredentialsProvider{
		id:     id,
		name:   "Credentials",
		store:  store,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// ID implements Provider.
func (p *CredentialsProvider) ID() string { return p.id }

// Name implements Provider.
func (p *CredentialsProvider) Name() string { return p.name }

// Type implements Provider.
func (p *CredentialsProvider) Type() ProviderType { return ProviderTypeCredentials }

// Authorize implements CredentialsAuthorizer. Bad credentials return
// (nil, nil); errors are store failures, validation failures, and the
// login-attempt cooldown.
func (p *CredentialsProvider) Authorize(ctx context.Context, creds Credentials) (*User, error) {
	if err := validateSignInPayload(creds); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign-in payload")
	}

	user, err := p.store.FindByIdentifier(ctx, creds.Identifier())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	if user == nil {
		// burn a comparison so unknown identifiers cost the same as bad passwords
		_ = ComparePasswordAndHash(creds.Password, RandomPasswordHash())
		return nil, nil
	}

	if err := p.ensureNotCoolingDown(user); err != nil {
		return nil, err
	}

	if err := ComparePasswordAndHash(creds.Password, user.PasswordHash); err != nil {
		if trackErr := p.store.TrackAttemptedLogin(ctx, user); trackErr != nil {
			p.logger.Warn("failed to track attempted login", "error", trackErr)
		}
		if TextCode(err) == TextCodeInvalidCredentials {
			return nil, nil
		}
		return nil, err
	}

	if err := p.store.TrackSuccessfulLogin(ctx, user); err != nil {
		p.logger.Warn("failed to track successful login", "error", err)
	}

	authUser := user.User
	return &authUser, nil
}

// Register implements Registrar. Without a RegisterHook, it hashes the
// password and creates the user through the store.
func (p *CredentialsProvider) Register(ctx context.Context, creds Credentials) (*User, error) {
	if p.RegisterHook != nil {
		return p.RegisterHook(ctx, creds)
	}

	if err := validateRegisterPayload(creds); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	if existing, err := p.store.FindByIdentifier(ctx, creds.Identifier()); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing user")
	} else if existing != nil {
		return nil, goerrors.New("identifier already registered", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &StoredUser{
		User: User{
			ID:         uuid.NewString(),
			Email:      creds.Email,
			Name:       creds.Username,
			Attributes: creds.Attributes,
		},
		PasswordHash: hash,
	}

	if err := p.store.CreateUser(ctx, user); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}

	authUser := user.User
	return &authUser, nil
}

func (p *CredentialsProvider) ensureNotCoolingDown(user *StoredUser) error {
	if user.LoginAttempts < MaxLoginAttempts || user.LoginAttemptAt == nil {
		return nil
	}

	if p.now().Sub(*user.LoginAttemptAt) < CoolDownPeriod {
		return ErrTooManyAttempts
	}

	return nil
}

func validateSignInPayload(c Credentials) error {
	return validation.Errors{
		"identifier": validation.Validate(c.Identifier(), validation.Required),
		"password":   validation.Validate(c.Password, validation.Required),
	}.Filter()
}

func validateRegisterPayload(c Credentials) error {
	return validation.Errors{
		"email":    validation.Validate(c.Email, validation.Required, is.Email),
		"password": validation.Validate(c.Password, validation.Required, validation.Length(8, 128)),
	}.Filter()
}
