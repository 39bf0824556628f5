package auth

import "context"

// Method records how a principal was authenticated.
type Method string

const (
	MethodAccessToken Method = "access_token"
	MethodAPIKey      Method = "api_key"
)

// Principal is a verified caller identity attached to a request context.
type Principal struct {
	Payload
	Method Method
	// APIKeyID is set when Method is MethodAPIKey.
	APIKeyID string
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the verified principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}
