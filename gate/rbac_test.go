package gate_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-authkit/gate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnyOf(t *testing.T) {
	g := gate.New()
	require.NoError(t, g.Register("admin.panel", gate.AnyOf("admin", "moderator")))

	ctx := context.Background()

	assert.True(t, g.Can(ctx, testPrincipal{id: "u1", roles: []string{"admin"}}, "admin.panel", nil))
	assert.True(t, g.Can(ctx, testPrincipal{id: "u2", roles: []string{"moderator", "member"}}, "admin.panel", nil))
	assert.False(t, g.Can(ctx, testPrincipal{id: "u3", roles: []string{"member"}}, "admin.panel", nil))
	assert.False(t, g.Can(ctx, testPrincipal{id: "u4"}, "admin.panel", nil))
}

func TestAllOf(t *testing.T) {
	g := gate.New()
	require.NoError(t, g.Register("billing.export", gate.AllOf("billing", "admin")))

	ctx := context.Background()

	assert.True(t, g.Can(ctx, testPrincipal{id: "u1", roles: []string{"admin", "billing"}}, "billing.export", nil))
	assert.False(t, g.Can(ctx, testPrincipal{id: "u2", roles: []string{"billing"}}, "billing.export", nil))
}

func TestRoleChecksAdmitGuestsOnGuestAbilities(t *testing.T) {
	g := gate.New()
	require.NoError(t, g.Register("public.read", gate.AnyOf("admin"), gate.WithGuestAccess()))
	require.NoError(t, g.Register("public.list", gate.AllOf("admin", "auditor"), gate.WithGuestAccess()))
	require.NoError(t, g.Register("private.read", gate.AnyOf("admin")))

	ctx := context.Background()

	// guest access passes a nil principal regardless of the role rules
	assert.True(t, g.Can(ctx, nil, "public.read", nil))
	assert.True(t, g.Can(ctx, nil, "public.list", nil))

	// abilities without guest access still require a principal
	assert.False(t, g.Can(ctx, nil, "private.read", nil))
	err := g.Authorize(ctx, nil, "private.read", nil)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "unauthenticated", richErr.TextCode)
}

func TestRegisterFromConfig(t *testing.T) {
	g := gate.New()

	require.NoError(t, gate.RegisterFromConfig(g, map[string][]string{
		"posts.publish": {"editor", "admin"},
		"users.manage":  {"admin"},
	}))

	ctx := context.Background()
	editor := testPrincipal{id: "e1", roles: []string{"editor"}}

	assert.True(t, g.Can(ctx, editor, "posts.publish", nil))
	assert.False(t, g.Can(ctx, editor, "users.manage", nil))

	// config-driven abilities are managed: a reload replaces them
	require.NoError(t, gate.RegisterFromConfig(g, map[string][]string{
		"posts.publish": {"admin"},
	}))
	assert.False(t, g.Can(ctx, editor, "posts.publish", nil))
}

type postPolicy struct{}

type post struct {
	AuthorID string
}

func (postPolicy) View(_ context.Context, _ gate.Principal, _ post) error { return nil }

func (postPolicy) Create(_ context.Context, p gate.Principal) error {
	return requireRole(p, "author")
}

func (postPolicy) Update(_ context.Context, p gate.Principal, resource post) error {
	return requireOwner(p, resource)
}

func (postPolicy) Delete(_ context.Context, p gate.Principal, resource post) error {
	return requireOwner(p, resource)
}

func requireRole(p gate.Principal, role string) error {
	for _, r := range p.PrincipalRoles() {
		if r == role {
			return nil
		}
	}
	return assert.AnError
}

func requireOwner(p gate.Principal, resource post) error {
	if p.PrincipalID() != resource.AuthorID {
		return assert.AnError
	}
	return nil
}

func TestBindPolicy(t *testing.T) {
	g := gate.New()
	require.NoError(t, gate.BindPolicy[post](g, "posts", postPolicy{}))

	ctx := context.Background()
	author := testPrincipal{id: "u1", roles: []string{"author"}}
	reader := testPrincipal{id: "u2"}

	assert.ElementsMatch(t,
		[]string{"posts.view", "posts.create", "posts.update", "posts.delete"},
		g.Abilities())

	assert.True(t, g.Can(ctx, author, "posts.create", nil))
	assert.False(t, g.Can(ctx, reader, "posts.create", nil))

	owned := post{AuthorID: "u1"}
	assert.True(t, g.Can(ctx, author, "posts.update", owned))
	assert.False(t, g.Can(ctx, reader, "posts.update", owned))

	// wrong payload type denies instead of panicking
	assert.False(t, g.Can(ctx, author, "posts.update", "not-a-post"))
}
