package oauth2_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/goliatone/go-authkit/oauth2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	testHMACKey       = []byte("fedcba9876543210fedcba9876543210")
)

func newStateManager(ttl time.Duration) *oauth2.EncryptedStateManager {
	return oauth2.NewEncryptedStateManager(testEncryptionKey, testHMACKey, ttl)
}

func TestStateRoundTrip(t *testing.T) {
	sm := newStateManager(0)

	encoded, err := sm.Encode(&oauth2.State{
		Provider:     "github",
		CodeVerifier: "verifier-xyz",
		RedirectURL:  "/dashboard",
	})
	require.NoError(t, err)

	decoded, err := sm.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, "github", decoded.Provider)
	assert.Equal(t, "verifier-xyz", decoded.CodeVerifier)
	assert.Equal(t, "/dashboard", decoded.RedirectURL)
	assert.NotEmpty(t, decoded.Nonce)
	assert.Greater(t, decoded.ExpiresAt, decoded.IssuedAt)
}

func TestStateDecodeRejectsGarbage(t *testing.T) {
	sm := newStateManager(0)

	for _, token := range []string{"", "not-base64!", base64.URLEncoding.EncodeToString([]byte("short"))} {
		_, err := sm.Decode(token)
		require.Error(t, err)
		assert.ErrorIs(t, err, oauth2.ErrInvalidState)
	}
}

func TestStateDecodeRejectsTampering(t *testing.T) {
	sm := newStateManager(0)

	encoded, err := sm.Encode(&oauth2.State{Provider: "github"})
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// flip one ciphertext byte, the signature no longer matches
	raw[len(raw)-1] ^= 0x01
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, err = sm.Decode(tampered)
	assert.ErrorIs(t, err, oauth2.ErrInvalidState)
}

func TestStateDecodeRejectsWrongKeys(t *testing.T) {
	encoded, err := newStateManager(0).Encode(&oauth2.State{Provider: "github"})
	require.NoError(t, err)

	other := oauth2.NewEncryptedStateManager(testEncryptionKey, []byte("another-hmac-key-another-hmac-ke"), 0)
	_, err = other.Decode(encoded)
	assert.ErrorIs(t, err, oauth2.ErrInvalidState)
}

func TestStateDecodeRejectsExpired(t *testing.T) {
	sm := newStateManager(0)

	expired := time.Now().Add(-time.Minute).Unix()
	encoded, err := sm.Encode(&oauth2.State{
		Provider:  "github",
		IssuedAt:  expired - 60,
		ExpiresAt: expired,
	})
	require.NoError(t, err)

	_, err = sm.Decode(encoded)
	assert.ErrorIs(t, err, oauth2.ErrStateExpired)
}

func TestGenerateCodeVerifier(t *testing.T) {
	first, err := oauth2.GenerateCodeVerifier()
	require.NoError(t, err)
	second, err := oauth2.GenerateCodeVerifier()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestComputeCodeChallenge(t *testing.T) {
	verifier := "verifier-xyz"
	sum := sha256.Sum256([]byte(verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.Equal(t, want, oauth2.ComputeCodeChallenge(verifier))
}
