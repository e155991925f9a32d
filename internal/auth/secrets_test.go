package auth_test

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentauth/internal/auth"
)

func TestSecretGenerator_VerificationSecret(t *testing.T) {
	g := auth.NewSecretGenerator(0, 0)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s, err := g.NewVerificationSecret(now)
	require.NoError(t, err)

	assert.Len(t, s.Token, 64)
	_, err = hex.DecodeString(s.Token)
	assert.NoError(t, err)
	assert.Equal(t, auth.HashSecret(s.Token), s.Hash)
	assert.NotEqual(t, s.Token, s.Hash)
	assert.Equal(t, now.Add(24*time.Hour), s.ExpiresAt)

	other, err := g.NewVerificationSecret(now)
	require.NoError(t, err)
	assert.NotEqual(t, s.Token, other.Token)
}

func TestSecretGenerator_OTPRangeAndExpiry(t *testing.T) {
	g := auth.NewSecretGenerator(0, 0)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 200; i++ {
		o, err := g.NewOTP(now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, o.Code, 100000)
		assert.LessOrEqual(t, o.Code, 999999)
		assert.Equal(t, now.Add(5*time.Minute), o.ExpiresAt)
	}
}

func TestSecretGenerator_CustomTTLs(t *testing.T) {
	g := auth.NewSecretGenerator(time.Hour, time.Minute)
	now := time.Now()

	s, err := g.NewVerificationSecret(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	o, err := g.NewOTP(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), o.ExpiresAt)
}

func TestHashSecret_Deterministic(t *testing.T) {
	assert.Equal(t, auth.HashSecret("abc"), auth.HashSecret("abc"))
	assert.NotEqual(t, auth.HashSecret("abc"), auth.HashSecret("abd"))
	assert.Len(t, auth.HashSecret("abc"), 64)
}
