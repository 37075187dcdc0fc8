package auth_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonKeys(t *testing.T, body any) map[string]json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	keys := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(raw, &keys))
	return keys
}

func TestSessionShowUnauthenticated(t *testing.T) {
	manager, err := auth.NewManager(newStubStrategy())
	require.NoError(t, err)

	ctrl := auth.NewController(manager, nil)

	c := newMockContext()
	require.NoError(t, ctrl.SessionShow(c))

	assert.Equal(t, 401, c.StatusCode)

	keys := jsonKeys(t, c.JSONBody)
	require.Contains(t, keys, "error")

	var errBody map[string]any
	require.NoError(t, json.Unmarshal(keys["error"], &errBody))
	assert.Equal(t, "unauthenticated", errBody["text_code"])
}

func TestSessionShowReturnsFlattenedSession(t *testing.T) {
	strategy := newStubStrategy()
	now := time.Now()
	strategy.current = &auth.Session{
		User:      testUser(),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		Strategy:  strategy.Name(),
	}

	manager, err := auth.NewManager(strategy)
	require.NoError(t, err)

	ctrl := auth.NewController(manager, nil)

	c := newMockContext()
	require.NoError(t, ctrl.SessionShow(c))

	assert.Equal(t, 200, c.StatusCode)

	keys := jsonKeys(t, c.JSONBody)
	assert.Contains(t, keys, "user")
	assert.Contains(t, keys, "strategy")
	assert.NotContains(t, keys, "session", "session payload is the response body, not nested")
}

func TestRegisterRespondsWithSession(t *testing.T) {
	strategy := newStubStrategy()
	provider := &stubCredentialsProvider{user: testUser()}

	manager, err := auth.NewManager(strategy, auth.WithProviders(provider))
	require.NoError(t, err)

	ctrl := auth.NewController(manager, nil)

	c := newMockContext()
	c.HTTPMethod = "POST"
	c.Params["provider"] = "credentials"
	c.BindFunc = func(v any) error {
		payload, ok := v.(*auth.RegisterPayload)
		require.True(t, ok)
		payload.Email = "ada@example.com"
		payload.Password = "correct horse battery"
		return nil
	}

	require.NoError(t, ctrl.Register(c))

	assert.Equal(t, 201, c.StatusCode)
	assert.Equal(t, 1, provider.registerCalls)
	assert.Equal(t, 1, strategy.issued, "registration responds with a live session")

	keys := jsonKeys(t, c.JSONBody)
	assert.Contains(t, keys, "user")
	assert.Contains(t, keys, "strategy")
}

func TestSignInRespondsWithCallbackRedirect(t *testing.T) {
	provider := &stubCredentialsProvider{user: testUser()}

	manager, err := auth.NewManager(newStubStrategy(),
		auth.WithProviders(provider),
		auth.WithCallbacks(auth.Callbacks{
			SignIn: func(_ context.Context, _ *auth.User, _ string) (*auth.SignInResult, error) {
				return &auth.SignInResult{Allow: true, RedirectURL: "/welcome"}, nil
			},
		}),
	)
	require.NoError(t, err)

	ctrl := auth.NewController(manager, nil)

	c := newMockContext()
	c.HTTPMethod = "POST"
	c.Params["provider"] = "credentials"
	c.BindFunc = func(v any) error {
		payload, ok := v.(*auth.SignInPayload)
		require.True(t, ok)
		payload.Email = "ada@example.com"
		payload.Password = "correct horse battery"
		return nil
	}

	require.NoError(t, ctrl.SignIn(c))

	assert.Equal(t, 200, c.StatusCode)

	keys := jsonKeys(t, c.JSONBody)
	require.Contains(t, keys, "redirect")

	var redirect string
	require.NoError(t, json.Unmarshal(keys["redirect"], &redirect))
	assert.Equal(t, "/welcome", redirect)
}
