// Package common contains shared constants and sentinel errors used across
// the auth server components.
package common

const (
	// AuthorizationHeaderName carries "Bearer <access token>" on HTTP requests
	// and in gRPC metadata.
	AuthorizationHeaderName = "authorization"

	// APIKeyHeaderName carries a raw API key on machine-to-machine requests.
	APIKeyHeaderName = "x-api-key"

	// BearerPrefix is the scheme prefix of the Authorization header.
	BearerPrefix = "Bearer "
)
