package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("user-1")
	require.NoError(t, err)

	subject, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestTokenIssuerRejectsForeignSignature(t *testing.T) {
	a, err := NewTokenIssuer("secret-a", time.Hour)
	require.NoError(t, err)
	b, err := NewTokenIssuer("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue("user-1")
	require.NoError(t, err)

	_, err = b.Parse(token)
	assert.Error(t, err)
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", time.Minute)
	require.NoError(t, err)

	start := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }
	token, err := issuer.Issue("user-1")
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = issuer.Parse(token)
	assert.Error(t, err)
}

func TestNewTokenIssuerGeneratesSecret(t *testing.T) {
	issuer, err := NewTokenIssuer("", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, issuer.secret)

	_, err = NewTokenIssuer("secret", 0)
	assert.Error(t, err)
}

func TestRandomKeyLength(t *testing.T) {
	key, err := RandomKey(accessKeyBytes)
	require.NoError(t, err)
	assert.Len(t, key, 40)
}
