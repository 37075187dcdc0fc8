package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// JWTConfig configures token signing and verification.
type JWTConfig struct {
	Enabled     bool          `json:"enabled"`
	Issuer      string        `json:"issuer"`
	Audience    []string      `json:"audience"`
	SigningKey  string        `json:"signing_key"`
	Algorithms  []string      `json:"algorithms"`
	JWKSURI     string        `json:"jwks_uri"`
	JWKSRefresh time.Duration `json:"jwks_refresh"`
	ClockSkew   time.Duration `json:"clock_skew"`
	TTL         time.Duration `json:"ttl"`
}

// Config is the top level authentication configuration.
type Config struct {
	JWT             JWTConfig           `json:"jwt"`
	SessionStrategy string              `json:"session_strategy"`
	SessionDuration time.Duration       `json:"session_duration"`
	UpdateAge       time.Duration       `json:"update_age"`
	Abilities       map[string][]string `json:"abilities"`
}

// Validate fails fast on broken configuration so a misconfigured deployment
// never issues unverifiable tokens.
func (c Config) Validate() error {
	if c.JWT.Enabled && c.JWT.SigningKey == "" && c.JWT.JWKSURI == "" {
		return ErrMissingJWTSecret
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.SessionStrategy,
			validation.In("", StrategyCookie, StrategyJWT)),
	)
}

// NewIssuerFromConfig builds a token issuer from configuration.
func (c Config) NewIssuerFromConfig(opts ...IssuerOption) (*Issuer, error) {
	ttl := c.JWT.TTL
	if ttl == 0 {
		ttl = time.Hour
	}

	return NewIssuer([]byte(c.JWT.SigningKey), ttl, c.JWT.Issuer, c.JWT.Audience, opts...)
}

// NewVerifierFromConfig builds a token verifier from configuration. A JWKS
// URI takes precedence over the shared signing key.
func (c Config) NewVerifierFromConfig(opts ...VerifierOption) *Verifier {
	base := []VerifierOption{}

	if c.JWT.JWKSURI != "" {
		base = append(base, WithKeyResolver(NewRemoteKeySet(c.JWT.JWKSURI, c.JWT.JWKSRefresh)))
	}
	if len(c.JWT.Algorithms) > 0 {
		base = append(base, WithAllowedAlgorithms(c.JWT.Algorithms...))
	}
	if c.JWT.Issuer != "" {
		base = append(base, WithExpectedIssuer(c.JWT.Issuer))
	}
	if len(c.JWT.Audience) > 0 {
		base = append(base, WithExpectedAudience(c.JWT.Audience...))
	}
	if c.JWT.ClockSkew > 0 {
		base = append(base, WithClockSkew(c.JWT.ClockSkew))
	}

	return NewVerifier([]byte(c.JWT.SigningKey), append(base, opts...)...)
}
