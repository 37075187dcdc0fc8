package google_test

import (
	"testing"

	"github.com/goliatone/go-authkit/oauth2/providers/google"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapProfile(t *testing.T) {
	profile, err := google.MapProfile(map[string]any{
		"sub":            "10769150350006150715113082367",
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"picture":        "https://lh3.googleusercontent.com/photo.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, "10769150350006150715113082367", profile.ID)
	assert.Equal(t, "ada@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Ada Lovelace", profile.Name)
	assert.Equal(t, "https://lh3.googleusercontent.com/photo.jpg", profile.AvatarURL)
}

func TestMapProfileRequiresSub(t *testing.T) {
	_, err := google.MapProfile(map[string]any{"email": "ada@example.com"})
	require.Error(t, err)
}
