// Package auth issues and verifies the credentials of the API: short-lived
// HS256 access tokens, opaque refresh tokens and static API keys.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/uhoapp/authkit/internal/common"
)

const (
	// AccessTokenTTL is the fixed lifetime of an access token.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the fixed lifetime of a refresh token (2,592,000s).
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// now is a seam for tests.
var now = time.Now

// Payload is the identity embedded in an access token. These three fields are
// the only custom claims a token may carry.
type Payload struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	SchemaName string `json:"schemaName"`
}

// accessClaims is the wire form of an access token. Only iat and exp are set
// on the registered claims, so no other claim is ever serialized.
type accessClaims struct {
	Payload
	jwt.RegisteredClaims
}

// SignAccessToken signs p with HS256 and secret. The token expires
// AccessTokenTTL after issuance.
func SignAccessToken(p Payload, secret []byte) (string, error) {
	return signAccessToken(p, secret, now())
}

func signAccessToken(p Payload, secret []byte, issuedAt time.Time) (string, error) {
	claims := accessClaims{
		Payload: p,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyAccessToken checks the signature (HS256 only) and expiry of
// tokenString and returns its payload.
//
// It returns common.ErrTokenExpired when the token is well formed and signed
// with secret but past its expiry, and common.ErrInvalidToken for every other
// failure (malformed, tampered, wrong secret, other algorithm, no subject).
func VerifyAccessToken(tokenString string, secret []byte) (*Payload, error) {
	claims := &accessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	p := claims.Payload
	return &p, nil
}
