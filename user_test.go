package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPrincipalRoundTrip(t *testing.T) {
	user := &auth.User{
		ID:    "user-1",
		Email: "ada@example.com",
		Name:  "Ada Lovelace",
		Image: "https://cdn.example.com/ada.png",
		Roles: []string{"admin", "member"},
		Attributes: map[string]any{
			"tenant": "acme",
		},
	}

	principal, err := user.ToPrincipal()
	require.NoError(t, err)

	assert.Equal(t, "user-1", principal.ID)
	assert.Equal(t, []string{"admin", "member"}, principal.Roles)
	assert.Equal(t, "ada@example.com", principal.Attributes["email"])
	assert.Equal(t, "acme", principal.Attributes["tenant"])

	back := auth.UserFromPrincipal(principal)
	assert.Equal(t, user, back)
}

func TestToPrincipalRequiresID(t *testing.T) {
	_, err := (&auth.User{Email: "ada@example.com"}).ToPrincipal()
	require.Error(t, err)

	var nilUser *auth.User
	_, err = nilUser.ToPrincipal()
	require.Error(t, err)
}

func TestToPrincipalCopiesAttributes(t *testing.T) {
	user := &auth.User{
		ID:         "user-1",
		Attributes: map[string]any{"tenant": "acme"},
	}

	principal, err := user.ToPrincipal()
	require.NoError(t, err)

	principal.Attributes["tenant"] = "evil"
	principal.Roles = append(principal.Roles, "admin")

	assert.Equal(t, "acme", user.Attributes["tenant"])
	assert.Empty(t, user.Roles)
}

func TestPrincipalHasRole(t *testing.T) {
	p := auth.Principal{ID: "user-1", Roles: []string{"member"}}

	assert.True(t, p.HasRole("member"))
	assert.False(t, p.HasRole("admin"))
	assert.Equal(t, "user-1", p.PrincipalID())
	assert.Equal(t, []string{"member"}, p.PrincipalRoles())
}

func TestCredentialsIdentifier(t *testing.T) {
	assert.Equal(t, "ada@example.com", auth.Credentials{Email: "ada@example.com", Username: "ada"}.Identifier())
	assert.Equal(t, "ada", auth.Credentials{Username: "ada"}.Identifier())
	assert.Empty(t, auth.Credentials{}.Identifier())
}

func TestSessionPrincipal(t *testing.T) {
	session := &auth.Session{User: &auth.User{ID: "user-1", Roles: []string{"member"}}}

	principal, err := session.Principal()
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.ID)

	var empty *auth.Session
	_, err = empty.Principal()
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeUnauthenticated, auth.TextCode(err))

	_, err = (&auth.Session{}).Principal()
	require.Error(t, err)
}

func TestSessionExpiryAndAge(t *testing.T) {
	now := time.Now()
	session := &auth.Session{
		IssuedAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}

	assert.False(t, session.Expired(now))
	assert.True(t, session.Expired(now.Add(2*time.Hour)))
	assert.Equal(t, time.Hour, session.Age(now))

	// zero expiry never expires
	assert.False(t, (&auth.Session{}).Expired(now))
}
