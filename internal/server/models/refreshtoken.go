package models

import "time"

// RefreshToken is the stored form of an issued refresh token. Only the
// SHA-256 digest of the raw token is kept.
//
// Tokens issued by successive rotations share a FamilyID. UsedAt is set once
// the token has been exchanged; presenting it again revokes the family.
type RefreshToken struct {
	ID        string
	UserID    string
	FamilyID  string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Used reports whether the token has already been exchanged.
func (t *RefreshToken) Used() bool {
	return t.UsedAt != nil
}
