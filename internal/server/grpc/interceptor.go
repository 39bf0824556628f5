package grpc

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// credentials is what identifyInterceptor learned from the metadata without
// touching storage.
type credentials struct {
	// apiKey is a well-formed key that still has to be looked up.
	apiKey string
	// err is a credential that already failed verification.
	err error
}

type credentialsKey struct{}

func credentialsFrom(ctx context.Context) credentials {
	c, _ := ctx.Value(credentialsKey{}).(credentials)
	return c
}

// identifyInterceptor verifies access tokens, which needs no storage, and
// attaches the principal. API keys are only checked for format here.
func (s *GRPCServer) identifyInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	raw, isKey, err := credentialFromMetadata(ctx)

	switch {
	case err != nil:
		ctx = context.WithValue(ctx, credentialsKey{}, credentials{err: err})
	case raw == "":
	case isKey:
		if !auth.ValidateAPIKeyFormat(raw) {
			ctx = context.WithValue(ctx, credentialsKey{}, credentials{err: common.ErrInvalidFormat})
			break
		}
		ctx = context.WithValue(ctx, credentialsKey{}, credentials{apiKey: raw})
	default:
		p, err := s.users.Authenticate(raw)
		if err != nil {
			ctx = context.WithValue(ctx, credentialsKey{}, credentials{err: err})
			break
		}
		ctx = auth.WithPrincipal(ctx, p)
	}

	return handler(ctx, req)
}

// credentialFromMetadata returns the raw credential and whether it is an API
// key. An authorization value without the Bearer scheme is an error.
func credentialFromMetadata(ctx context.Context) (string, bool, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false, nil
	}

	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		token, ok := strings.CutPrefix(values[0], common.BearerPrefix)
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return "", false, common.ErrInvalidToken
		}
		return token, strings.HasPrefix(token, auth.APIKeyPrefix), nil
	}

	if values := md.Get(common.APIKeyHeaderName); len(values) > 0 && values[0] != "" {
		return values[0], true, nil
	}

	return "", false, nil
}

// rateLimitInterceptor applies the global policy keyed by the token's user or
// the peer IP, then the method's route policy. API key callers are counted by
// IP because their key has not been looked up yet.
func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter == nil || s.unlimited[info.FullMethod] {
		return handler(ctx, req)
	}

	subject := ratelimit.Subject{IP: peerIP(ctx)}
	if p := auth.PrincipalFromContext(ctx); p != nil {
		subject.UserID = p.UserID
	}

	err := s.limiter.Allow(ctx, ratelimit.Request{
		Method:  info.FullMethod,
		Route:   s.scopes[info.FullMethod],
		Subject: subject,
	})
	if err != nil {
		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(exceeded.RetryAfterSeconds())))
		}
		return nil, toStatus(err)
	}

	return handler(ctx, req)
}

// authorizeInterceptor looks up a pending API key and rejects anonymous or
// failed callers of protected methods. Open methods run anonymously when the
// credential is bad.
func (s *GRPCServer) authorizeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	creds := credentialsFrom(ctx)

	if creds.apiKey != "" {
		p, err := s.keys.Authenticate(ctx, creds.apiKey)
		if err != nil {
			creds.err = err
		} else {
			ctx = auth.WithPrincipal(ctx, p)
		}
	}

	if auth.PrincipalFromContext(ctx) != nil || !s.protected[info.FullMethod] {
		return handler(ctx, req)
	}

	if creds.err == nil {
		return nil, status.Error(codes.Unauthenticated, "missing credentials")
	}
	return nil, toStatus(creds.err)
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}

// toStatus maps a service error to a gRPC status.
func toStatus(err error) error {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return status.Error(codes.ResourceExhausted, exceeded.Message())
	}

	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "access token expired, refresh and retry")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, "refresh token expired, log in again")
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrRefreshTokenReused):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, common.ErrInvalidFormat):
		return status.Error(codes.Unauthenticated, "malformed credential")
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
