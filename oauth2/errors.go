package oauth2

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidState is returned for states that fail decryption, signature
// verification, or provider binding.
var ErrInvalidState = goerrors.New("OAuth state is invalid", goerrors.CategoryAuth).
	WithTextCode("invalid_state").
	WithCode(goerrors.CodeUnauthorized)

// ErrStateExpired is returned for states past their TTL.
var ErrStateExpired = goerrors.New("OAuth state has expired", goerrors.CategoryAuth).
	WithTextCode("state_expired").
	WithCode(goerrors.CodeUnauthorized)

// ProviderError carries the upstream status and error payload of a failed
// provider request.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

// Error implements error.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Provider, e.Operation)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Code)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements errors.Unwrap.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is a ProviderError and returns it.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
