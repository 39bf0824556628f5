// Package common defines shared constants and sentinel errors used across
// the auth server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrInvalidFormat means an API key, refresh token or verification token
	// does not have the expected shape. No storage lookup is needed to reject it.
	ErrInvalidFormat = errors.New("invalid credential format")

	// ErrInvalidToken means a signature mismatch, tampering or a malformed
	// access token. Fatal for the request.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired means the access token is past its expiry. Recoverable
	// through the refresh flow.
	ErrTokenExpired = errors.New("token expired")

	// Refresh token lifecycle errors.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshTokenReused  = errors.New("refresh token reused")

	// ErrRateLimitExceeded is matched by every rate limit refusal.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
