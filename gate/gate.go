// Package gate implements ability-based authorization: named checks
// registered up front and evaluated against the request principal.
package gate

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Principal is the authenticated caller as seen by authorization checks.
type Principal interface {
	PrincipalID() string
	PrincipalRoles() []string
}

// CheckFunc decides a single ability. A nil return allows, anything else
// denies with the returned reason. The principal is nil for guest requests,
// which only abilities registered with WithGuestAccess ever see.
type CheckFunc func(ctx context.Context, principal Principal, payload any) error

// ErrAbilityExists is returned when registering over an existing ability
// without the managed flag.
var ErrAbilityExists = goerrors.New("ability already registered", goerrors.CategoryConflict).
	WithTextCode("ability_exists").
	WithCode(goerrors.CodeConflict)

// ErrAbilityNotFound is returned when authorizing an unregistered ability.
var ErrAbilityNotFound = goerrors.New("ability not registered", goerrors.CategoryAuthz).
	WithTextCode("ability_not_found").
	WithCode(goerrors.CodeForbidden)

// ErrForbidden is the generic authorization denial.
var ErrForbidden = goerrors.New("forbidden", goerrors.CategoryAuthz).
	WithTextCode("forbidden").
	WithCode(goerrors.CodeForbidden)

// ErrGuestDenied rejects guest access to abilities that require a principal.
var ErrGuestDenied = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode("unauthenticated").
	WithCode(goerrors.CodeUnauthorized)

type ability struct {
	check      CheckFunc
	managed    bool
	allowGuest bool
}

// Gate is an explicit registry of abilities. All registrations normally
// happen during startup, but the registry is safe for concurrent use so
// managed abilities can be swapped at runtime.
type Gate struct {
	mu        sync.RWMutex
	abilities map[string]ability
	observers []Observer
}

// Option configures the gate.
type Option func(*Gate)

// WithObservers attaches evaluation observers.
func WithObservers(obs ...Observer) Option {
	return func(g *Gate) {
		g.observers = append(g.observers, obs...)
	}
}

// RegisterOption configures a single ability registration.
type RegisterOption func(*ability)

// Managed marks the ability as replaceable: a later registration under the
// same name overwrites it instead of failing.
func Managed() RegisterOption {
	return func(a *ability) { a.managed = true }
}

// WithGuestAccess lets the ability evaluate guest requests. The check
// receives a nil principal.
func WithGuestAccess() RegisterOption {
	return func(a *ability) { a.allowGuest = true }
}

// New creates an empty gate.
func New(opts ...Option) *Gate {
	g := &Gate{abilities: map[string]ability{}}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Register adds an ability. Registering over an existing name fails unless
// the existing registration is managed.
func (g *Gate) Register(name string, check CheckFunc, opts ...RegisterOption) error {
	if name == "" || check == nil {
		return goerrors.New("ability name and check are required", goerrors.CategoryBadInput)
	}

	a := ability{check: check}
	for _, opt := range opts {
		if opt != nil {
			opt(&a)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.abilities[name]; ok && !existing.managed {
		return ErrAbilityExists.Clone().WithMetadata(map[string]any{"ability": name})
	}

	g.abilities[name] = a
	return nil
}

// MustRegister is Register that panics, for startup wiring.
func (g *Gate) MustRegister(name string, check CheckFunc, opts ...RegisterOption) {
	if err := g.Register(name, check, opts...); err != nil {
		panic(err)
	}
}

// Abilities lists registered ability names.
func (g *Gate) Abilities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.abilities))
	for name := range g.abilities {
		out = append(out, name)
	}
	return out
}

// Authorize evaluates the named ability and returns a typed violation on
// denial. The violation carries the ability name in its metadata.
func (g *Gate) Authorize(ctx context.Context, principal Principal, name string, payload any) error {
	g.mu.RLock()
	a, ok := g.abilities[name]
	g.mu.RUnlock()

	if !ok {
		g.notify(Evaluation{Ability: name, Allowed: false, Principal: principal, Payload: payload})
		return ErrAbilityNotFound.Clone().WithMetadata(map[string]any{"ability": name})
	}

	if principal == nil && !a.allowGuest {
		g.notify(Evaluation{Ability: name, Allowed: false, Principal: principal, Payload: payload})
		return ErrGuestDenied.Clone().WithMetadata(map[string]any{"ability": name})
	}

	if err := a.check(ctx, principal, payload); err != nil {
		g.notify(Evaluation{Ability: name, Allowed: false, Principal: principal, Payload: payload})

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr.Clone().WithMetadata(map[string]any{"ability": name})
		}
		return ErrForbidden.Clone().
			WithMetadata(map[string]any{"ability": name, "reason": err.Error()})
	}

	g.notify(Evaluation{Ability: name, Allowed: true, Principal: principal, Payload: payload})
	return nil
}

// Can reports whether the principal may perform the ability.
func (g *Gate) Can(ctx context.Context, principal Principal, name string, payload any) bool {
	return g.Authorize(ctx, principal, name, payload) == nil
}

func (g *Gate) notify(evt Evaluation) {
	for _, obs := range g.observers {
		obs.Observe(evt)
	}
}
