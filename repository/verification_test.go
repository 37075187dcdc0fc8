package repository

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationTokenRepositoryConsumeIsSingleUse(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := NewVerificationTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, auth.VerificationToken{
		Identifier: "ada@example.com",
		Token:      "tok-1",
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}))

	consumed, err := repo.Consume(ctx, "ada@example.com", "tok-1")
	require.NoError(t, err)
	require.NotNil(t, consumed)
	assert.Equal(t, "tok-1", consumed.Token)

	replayed, err := repo.Consume(ctx, "ada@example.com", "tok-1")
	require.NoError(t, err)
	assert.Nil(t, replayed)
}

func TestVerificationTokenRepositoryCreateInvalidatesPrior(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := NewVerificationTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, auth.VerificationToken{
		Identifier: "ada@example.com",
		Token:      "tok-1",
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}))
	require.NoError(t, repo.Create(ctx, auth.VerificationToken{
		Identifier: "ada@example.com",
		Token:      "tok-2",
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}))

	stale, err := repo.Consume(ctx, "ada@example.com", "tok-1")
	require.NoError(t, err)
	assert.Nil(t, stale)

	current, err := repo.Consume(ctx, "ada@example.com", "tok-2")
	require.NoError(t, err)
	require.NotNil(t, current)
}

func TestVerificationTokenRepositoryConsumeWrongToken(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := NewVerificationTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, auth.VerificationToken{
		Identifier: "ada@example.com",
		Token:      "tok-1",
		ExpiresAt:  time.Now().Add(time.Hour).UTC(),
	}))

	got, err := repo.Consume(ctx, "ada@example.com", "tok-wrong")
	require.NoError(t, err)
	assert.Nil(t, got)

	// the real token is still redeemable
	kept, err := repo.Consume(ctx, "ada@example.com", "tok-1")
	require.NoError(t, err)
	require.NotNil(t, kept)
}
