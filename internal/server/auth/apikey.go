package auth

import (
	"strings"

	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/cryptox"
)

const (
	// APIKeyPrefix starts every API key.
	APIKeyPrefix = "uho_sk_"

	apiKeyBytes     = 16
	apiKeyHexLength = apiKeyBytes * 2
	displaySuffix   = 4
)

// APIKey is a freshly generated key. Raw is shown to the caller exactly once
// and must never be stored or logged; Hash and DisplayPrefix are persisted.
type APIKey struct {
	Raw           string
	Hash          string
	DisplayPrefix string
}

// GenerateAPIKey creates a new API key from 16 bytes of crypto/rand.
// On error nothing is returned.
func GenerateAPIKey() (*APIKey, error) {
	secret, err := common.MakeRandHexString(apiKeyBytes)
	if err != nil {
		return nil, err
	}

	raw := APIKeyPrefix + secret

	return &APIKey{
		Raw:           raw,
		Hash:          cryptox.HashString(raw),
		DisplayPrefix: APIKeyDisplayPrefix(raw),
	}, nil
}

// APIKeyDisplayPrefix returns the non-secret form used to identify a key in
// listings, e.g. "uho_sk_...3f9a".
func APIKeyDisplayPrefix(raw string) string {
	tail := raw
	if len(raw) > displaySuffix {
		tail = raw[len(raw)-displaySuffix:]
	}
	return APIKeyPrefix + "..." + tail
}

// ValidateAPIKeyFormat is a syntactic check only: prefix, 32 characters,
// lowercase hex. A true result is not proof of authenticity; the caller must
// still hash the candidate and look it up.
func ValidateAPIKeyFormat(candidate string) bool {
	rest, ok := strings.CutPrefix(candidate, APIKeyPrefix)
	if !ok {
		return false
	}
	return len(rest) == apiKeyHexLength && common.IsLowerHex(rest)
}
