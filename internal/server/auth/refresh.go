package auth

import (
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/cryptox"
)

// refreshTokenBytes is 256 bits of entropy, 64 hex characters on the wire.
const refreshTokenBytes = 32

// GenerateRefreshToken returns a new opaque refresh token. The raw value is
// handed to the client once; only HashRefreshToken(raw) is persisted.
func GenerateRefreshToken() (string, error) {
	return common.MakeRandHexString(refreshTokenBytes)
}

// HashRefreshToken returns the at-rest form of a refresh token.
func HashRefreshToken(raw string) string {
	return cryptox.HashString(raw)
}

// ValidateRefreshTokenFormat reports whether raw is exactly 64 lowercase hex
// characters. It does not consult storage.
func ValidateRefreshTokenFormat(raw string) bool {
	return len(raw) == refreshTokenBytes*2 && common.IsLowerHex(raw)
}
