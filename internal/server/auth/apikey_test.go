package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uhoapp/authkit/internal/cryptox"
)

func TestGenerateAPIKey_ValidAndHashed(t *testing.T) {
	for i := 0; i < 100; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)

		assert.True(t, ValidateAPIKeyFormat(key.Raw), "raw=%q", key.Raw)
		assert.Len(t, key.Raw, len(APIKeyPrefix)+32)
		assert.Equal(t, cryptox.HashString(key.Raw), key.Hash)
		assert.Equal(t, "uho_sk_..."+key.Raw[len(key.Raw)-4:], key.DisplayPrefix)
		assert.NotContains(t, key.DisplayPrefix, key.Raw[len(APIKeyPrefix):len(key.Raw)-4])
	}
}

func TestGenerateAPIKey_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)
		_, dup := seen[key.Raw]
		require.False(t, dup, "duplicate api key generated")
		seen[key.Raw] = struct{}{}
	}
}

func TestValidateAPIKeyFormat(t *testing.T) {
	hex32 := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", "uho_sk_" + hex32, true},
		{"empty", "", false},
		{"prefix only", "uho_sk_", false},
		{"missing prefix", hex32, false},
		{"wrong prefix", "uho_pk_" + hex32, false},
		{"too short", "uho_sk_" + hex32[:31], false},
		{"too long", "uho_sk_" + hex32 + "0", false},
		{"uppercase hex", "uho_sk_" + strings.ToUpper(hex32), false},
		{"non hex", "uho_sk_" + strings.Repeat("g", 32), false},
		{"whitespace", " uho_sk_" + hex32, false},
		{"unicode", "uho_sk_" + hex32[:30] + "é", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAPIKeyFormat(tt.in))
		})
	}
}

func TestAPIKeyDisplayPrefix(t *testing.T) {
	assert.Equal(t, "uho_sk_...cdef", APIKeyDisplayPrefix("uho_sk_0123456789abcdef0123456789abcdef"))
	assert.Equal(t, "uho_sk_...ab", APIKeyDisplayPrefix("ab"))
}
