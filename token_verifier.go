package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenVerifier validates tokens and extracts claims without tying callers to
// a specific key source.
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// Verifier validates compact JWTs in a strict order: format, key resolution,
// signature, issuer/audience, required claims, and skew-tolerant time checks.
// Every failure carries a stable machine code.
type Verifier struct {
	secret     []byte
	resolver   KeyResolver
	algorithms []string
	issuer     string
	audience   []string
	required   []string
	skew       time.Duration
	logger     Logger
	now        func() time.Time
}

// VerifierOption customizes the verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock injects a custom clock (useful for tests).
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// WithVerifierLogger overrides the default logger.
func WithVerifierLogger(l Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = normalizeLogger(l)
	}
}

// WithKeyResolver resolves keys from an inline key set or a remote JWKS
// endpoint instead of the shared HMAC secret.
func WithKeyResolver(resolver KeyResolver) VerifierOption {
	return func(v *Verifier) {
		v.resolver = resolver
	}
}

// WithAllowedAlgorithms replaces the algorithm allow-list (default HS256).
func WithAllowedAlgorithms(algs ...string) VerifierOption {
	return func(v *Verifier) {
		if len(algs) > 0 {
			v.algorithms = algs
		}
	}
}

// WithExpectedIssuer requires iss to match exactly.
func WithExpectedIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithExpectedAudience requires aud to include at least one of the values.
func WithExpectedAudience(audience ...string) VerifierOption {
	return func(v *Verifier) {
		v.audience = audience
	}
}

// WithRequiredClaims requires each named claim to be present.
func WithRequiredClaims(names ...string) VerifierOption {
	return func(v *Verifier) {
		v.required = names
	}
}

// WithClockSkew widens exp/nbf validation by the tolerance in both
// directions: a token passes if now-skew <= exp and now+skew >= nbf.
func WithClockSkew(skew time.Duration) VerifierOption {
	return func(v *Verifier) {
		if skew >= 0 {
			v.skew = skew
		}
	}
}

// NewVerifier creates a Verifier. A nil/empty secret is fine when a
// KeyResolver is configured; with neither, every Verify fails with
// no_keys_configured.
func NewVerifier(secret []byte, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:     secret,
		algorithms: []string{"HS256"},
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

// Verify validates the token and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims, _, err := v.verify(tokenString)
	return claims, err
}

// VerifyPayload validates the token and returns the raw verified payload.
func (v *Verifier) VerifyPayload(tokenString string) (*Payload, error) {
	claims, raw, err := v.verify(tokenString)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Subject:   claims.UserID(),
		Claims:    raw,
		IssuedAt:  claims.IssuedTime(),
		ExpiresAt: claims.ExpiryTime(),
	}, nil
}

func (v *Verifier) verify(tokenString string) (*Claims, map[string]any, error) {
	// 1. compact serialization
	rawClaims, err := decodePayloadSegment(tokenString)
	if err != nil {
		return nil, nil, ErrInvalidFormat
	}

	// 2+3. key resolution and signature
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, claims, v.resolveKey)
	if err != nil {
		return nil, nil, v.classifyParseError(err)
	}
	if !token.Valid {
		return nil, nil, ErrSignatureInvalid
	}

	// 4. issuer and audience
	if v.issuer != "" && claims.RegisteredClaims.Issuer != v.issuer {
		return nil, nil, ErrIssuerMismatch
	}
	if len(v.audience) > 0 && !audienceMatches(claims.RegisteredClaims.Audience, v.audience) {
		return nil, nil, ErrAudienceMismatch
	}

	// 5. required claims
	for _, name := range v.required {
		if val, ok := rawClaims[name]; !ok || val == nil {
			return nil, nil, MissingClaimError(name)
		}
	}

	// 6. time checks, widened by the skew tolerance in both directions
	now := v.now()
	if exp := claims.RegisteredClaims.ExpiresAt; exp != nil {
		if now.Add(-v.skew).After(exp.Time) {
			return nil, nil, ErrTokenExpired
		}
	}
	if nbf := claims.RegisteredClaims.NotBefore; nbf != nil {
		if now.Add(v.skew).Before(nbf.Time) {
			return nil, nil, ErrTokenNotYetValid
		}
	}

	return claims, rawClaims, nil
}

// resolveKey is the jwt.Keyfunc: it checks the algorithm allow-list and hands
// off to the configured key source.
func (v *Verifier) resolveKey(token *jwt.Token) (any, error) {
	if !v.algorithmAllowed(token.Method.Alg()) {
		v.logger.Warn("token signed with disallowed algorithm", "alg", token.Method.Alg())
		return nil, ErrSignatureInvalid
	}

	if v.resolver != nil {
		return v.resolver.ResolveKey(token)
	}

	if len(v.secret) > 0 {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSignatureInvalid
		}
		return v.secret, nil
	}

	return nil, ErrNoKeysConfigured
}

func (v *Verifier) algorithmAllowed(alg string) bool {
	for _, allowed := range v.algorithms {
		if allowed == alg {
			return true
		}
	}
	return false
}

// classifyParseError surfaces typed errors raised inside the keyfunc
// untouched; anything else is a format or signature failure.
func (v *Verifier) classifyParseError(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	if goerrors.Is(err, jwt.ErrTokenMalformed) {
		return ErrInvalidFormat
	}

	clone := ErrSignatureInvalid.Clone()
	clone.Source = err
	return clone
}

func audienceMatches(have jwt.ClaimStrings, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// decodePayloadSegment decodes the claims segment of a compact JWT without
// verifying it. It is used only for format validation and the required-claims
// check; trust comes from the signature step.
func decodePayloadSegment(tokenString string) (map[string]any, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidFormat
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	raw := map[string]any{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrInvalidFormat
	}

	return raw, nil
}

// MultiVerifier tries verifiers in order until one succeeds. Format and
// signature failures mean "try next"; other failures are final.
type MultiVerifier struct {
	verifiers []TokenVerifier
}

// NewMultiVerifier filters nil verifiers and returns a composite verifier.
func NewMultiVerifier(verifiers ...TokenVerifier) *MultiVerifier {
	filtered := make([]TokenVerifier, 0, len(verifiers))
	for _, v := range verifiers {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiVerifier{verifiers: filtered}
}

// Verify satisfies the TokenVerifier interface.
func (m *MultiVerifier) Verify(tokenString string) (*Claims, error) {
	var lastErr error
	for _, v := range m.verifiers {
		claims, err := v.Verify(tokenString)
		if err == nil {
			return claims, nil
		}
		code := TextCode(err)
		if code == TextCodeSignatureInvalid || code == TextCodeInvalidFormat {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrInvalidFormat
}
