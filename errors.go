package auth

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Machine-readable text codes. These are stable: they appear verbatim in
// HTTP error bodies and are asserted by tests.
const (
	TextCodeInvalidFormat         = "invalid_format"
	TextCodeNoKeysConfigured      = "no_keys_configured"
	TextCodeJWKSFetchFailed       = "jwks_fetch_failed"
	TextCodeJWKSMissingKeys       = "jwks_missing_keys"
	TextCodeSignatureInvalid      = "signature_verification_failed"
	TextCodeIssuerMismatch        = "issuer_mismatch"
	TextCodeAudienceMismatch      = "audience_mismatch"
	TextCodeTokenExpired          = "token_expired"
	TextCodeTokenNotYetValid      = "token_not_yet_valid"
	TextCodeMissingJWTSecret      = "missing_jwt_secret"
	TextCodeInvalidCredentials    = "invalid_credentials"
	TextCodeProviderNotFound      = "provider_not_found"
	TextCodeSignInDenied          = "signin_denied"
	TextCodeUnauthenticated       = "unauthenticated"
	TextCodeMethodNotAllowed      = "method_not_allowed"
	TextCodeRememberTokenStale    = "remember_token_stale"
	TextCodeVerificationInvalid   = "verification_token_invalid"
	TextCodeAccountNotFound       = "account_not_found"
	TextCodeImmutableClaimMutated = "immutable_claim_mutated"
	TextCodeTooManyAttempts       = "too_many_attempts"
)

// ErrInvalidFormat is returned when a token is not a valid compact JWT.
var ErrInvalidFormat = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidFormat).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoKeysConfigured is returned when the verifier has neither inline keys
// nor a JWKS endpoint to resolve against.
var ErrNoKeysConfigured = goerrors.New("no verification keys configured", goerrors.CategoryInternal).
	WithTextCode(TextCodeNoKeysConfigured).
	WithCode(goerrors.CodeInternal)

// ErrJWKSFetchFailed is returned when the remote key-set document cannot be
// retrieved. Upstream failures never crash the request; they fail verification.
var ErrJWKSFetchFailed = goerrors.New("failed to fetch JWKS document", goerrors.CategoryOperation).
	WithTextCode(TextCodeJWKSFetchFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrJWKSMissingKeys is returned when the key-set document has no usable keys.
var ErrJWKSMissingKeys = goerrors.New("JWKS document contains no usable keys", goerrors.CategoryOperation).
	WithTextCode(TextCodeJWKSMissingKeys).
	WithCode(goerrors.CodeUnauthorized)

// ErrSignatureInvalid is returned on signature or algorithm mismatch.
var ErrSignatureInvalid = goerrors.New("token signature verification failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignatureInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrIssuerMismatch is returned when iss does not match the configured issuer.
var ErrIssuerMismatch = goerrors.New("token issuer mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeIssuerMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrAudienceMismatch is returned when aud does not include a configured audience.
var ErrAudienceMismatch = goerrors.New("token audience mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeAudienceMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when exp is in the past beyond the skew tolerance.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenNotYetValid is returned when nbf is in the future beyond the skew tolerance.
var ErrTokenNotYetValid = goerrors.New("token is not yet valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenNotYetValid).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingJWTSecret is a configuration error, surfaced at boot or as a 500.
var ErrMissingJWTSecret = goerrors.New("JWT signing secret is not configured", goerrors.CategoryInternal).
	WithTextCode(TextCodeMissingJWTSecret).
	WithCode(goerrors.CodeInternal)

// ErrInvalidCredentials is the uniform bad-username-or-password failure.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrProviderNotFound is returned for an unknown provider id.
var ErrProviderNotFound = goerrors.New("provider not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSignInDenied is returned when the signIn callback vetoes an otherwise
// successful provider authorization.
var ErrSignInDenied = goerrors.New("sign-in denied", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignInDenied).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated is returned when no session can be resolved.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrMethodNotAllowed is returned for GET sign-in on credential-style providers.
var ErrMethodNotAllowed = goerrors.New("method not allowed", goerrors.CategoryValidation).
	WithTextCode(TextCodeMethodNotAllowed).
	WithCode(http.StatusMethodNotAllowed)

// ErrRememberTokenStale is returned when a presented remember token lost the
// rotation race or is unknown to the store.
var ErrRememberTokenStale = goerrors.New("remember token is stale", goerrors.CategoryAuth).
	WithTextCode(TextCodeRememberTokenStale).
	WithCode(goerrors.CodeUnauthorized)

// ErrVerificationTokenInvalid covers consumed, expired, and unknown magic-link tokens.
var ErrVerificationTokenInvalid = goerrors.New("verification token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeVerificationInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned for unknown (provider, provider account) pairs.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrImmutableClaimMutation is returned when the jwt callback rewrites a
// protected claim (sub, iss, aud, iat, exp).
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryValidation).
	WithTextCode(TextCodeImmutableClaimMutated).
	WithCode(goerrors.CodeInternal)

// ErrTooManyAttempts is returned while the login-attempt cooldown is active.
var ErrTooManyAttempts = goerrors.New("too many login attempts", goerrors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeTooManyRequests)

// MissingClaimError builds the per-claim required-claim failure, e.g.
// missing_claim_email.
func MissingClaimError(name string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("required claim missing: %s", name), goerrors.CategoryAuth).
		WithTextCode("missing_claim_" + name).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{"claim": name})
}

// TextCode extracts the machine code from an error, or "internal_error" when
// the error carries none.
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return "internal_error"
}

// HTTPStatus maps an error to the status its code implies, defaulting to 500.
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return int(richErr.Code)
	}
	return 500
}
