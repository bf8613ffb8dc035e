package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetTokenGenerator_Generate(t *testing.T) {
	t.Parallel()

	gen := NewResetTokenGenerator(time.Hour)

	token, expiresAt, err := gen.Generate()
	require.NoError(t, err)

	// 20 random bytes, hex encoded.
	assert.Len(t, token, 40)
	_, err = hex.DecodeString(token)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
}

func TestResetTokenGenerator_TokensAreDistinct(t *testing.T) {
	t.Parallel()

	gen := NewResetTokenGenerator(time.Hour)

	seen := make(map[string]bool)
	for range 32 {
		token, _, err := gen.Generate()
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate reset token generated")
		seen[token] = true
	}
}

func TestResetTokenGenerator_DefaultTTL(t *testing.T) {
	t.Parallel()

	gen := NewResetTokenGenerator(0)

	_, expiresAt, err := gen.Generate()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
}
