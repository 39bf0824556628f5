// Package cryptox holds the one-way hashing primitives shared by API keys,
// refresh tokens and user passwords.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/uhoapp/authkit/internal/common"
	"golang.org/x/crypto/argon2"
)

// Hash returns the lowercase hex SHA-256 digest of secret.
//
// There is no salt: inputs are high-entropy random values (refresh tokens,
// API keys), never user-chosen passwords. Use HashPassword for those.
func Hash(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// HashString is Hash for string secrets.
func HashString(secret string) string {
	return Hash([]byte(secret))
}

// argon2id parameters for password hashing.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

var errMalformedPasswordHash = errors.New("malformed password hash")

// randBytes is the salt source.
var randBytes = common.RandBytes

// HashPassword derives an argon2id key from password with a fresh random salt
// and returns it in the form
//
//	argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// where salt and key are unpadded standard base64.
func HashPassword(password string) (string, error) {
	salt, err := randBytes(argonSaltLen)
	if err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// CheckPassword reports whether password matches an encoded hash produced by
// HashPassword. Malformed hashes never match.
func CheckPassword(encoded, password string) bool {
	p, salt, key, err := decodePasswordHash(encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key)))
	defer common.WipeByteArray(candidate)

	return subtle.ConstantTimeCompare(key, candidate) == 1
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decodePasswordHash(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return p, nil, nil, errMalformedPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errMalformedPasswordHash
	}

	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, errMalformedPasswordHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return p, nil, nil, errMalformedPasswordHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errMalformedPasswordHash
	}

	return p, salt, key, nil
}
