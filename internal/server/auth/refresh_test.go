package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uhoapp/authkit/internal/cryptox"
)

func TestGenerateRefreshToken_Shape(t *testing.T) {
	raw, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, raw, 64)
	assert.True(t, ValidateRefreshTokenFormat(raw))
}

func TestGenerateRefreshToken_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		raw, err := GenerateRefreshToken()
		require.NoError(t, err)
		_, dup := seen[raw]
		require.False(t, dup, "duplicate refresh token generated")
		seen[raw] = struct{}{}
	}
}

func TestHashRefreshToken_Deterministic(t *testing.T) {
	raw, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.Equal(t, HashRefreshToken(raw), HashRefreshToken(raw))
	assert.Equal(t, cryptox.HashString(raw), HashRefreshToken(raw))
	assert.NotEqual(t, raw, HashRefreshToken(raw))
}

func TestValidateRefreshTokenFormat(t *testing.T) {
	good := strings.Repeat("ab", 32)

	assert.True(t, ValidateRefreshTokenFormat(good))
	assert.False(t, ValidateRefreshTokenFormat(""))
	assert.False(t, ValidateRefreshTokenFormat(good[:63]))
	assert.False(t, ValidateRefreshTokenFormat(good+"a"))
	assert.False(t, ValidateRefreshTokenFormat(strings.ToUpper(good)))
	assert.False(t, ValidateRefreshTokenFormat(strings.Repeat("zz", 32)))
}
