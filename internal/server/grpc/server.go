// Package grpc serves the gRPC endpoint: the account flows of AuthService and
// the standard health service, behind the same authentication and rate
// limiting as the HTTP API.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/uhoapp/authkit/internal/logging"
	pb "github.com/uhoapp/authkit/internal/proto"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/models"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
	"github.com/uhoapp/authkit/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TokenAuthenticator verifies access tokens.
type TokenAuthenticator interface {
	Authenticate(accessToken string) (*auth.Principal, error)
}

// KeyAuthenticator verifies API keys.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*auth.Principal, error)
}

// UserService is the account API behind AuthService.
type UserService interface {
	TokenAuthenticator
	Register(ctx context.Context, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// VerificationSender delivers email verification tokens to users.
type VerificationSender interface {
	SendVerification(ctx context.Context, email, token string) error
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the gRPC server.
type Deps struct {
	Users   UserService
	APIKeys KeyAuthenticator
	Logger  logging.Logger

	// Limiter is optional; without it no call is limited.
	Limiter *ratelimit.Limiter
	// Sender receives verification tokens issued by Register.
	Sender VerificationSender
	// Pinger drives the health status when set.
	Pinger Pinger
}

// MethodScopes maps methods to the route policy applied on top of the global
// limit, mirroring the HTTP routes.
var MethodScopes = map[string]string{
	pb.AuthService_Login_FullMethodName:    ratelimit.ScopeLogin,
	pb.AuthService_Register_FullMethodName: ratelimit.ScopeRegister,
}

type GRPCServer struct {
	pb.UnimplementedAuthServiceServer

	address string
	logger  logging.Logger
	users   UserService
	keys    KeyAuthenticator
	limiter *ratelimit.Limiter
	sender  VerificationSender
	pinger  Pinger
	health  *health.Server

	// protected methods reject anonymous callers
	protected map[string]bool
	// unlimited methods skip the rate limiter
	unlimited map[string]bool
	scopes    map[string]string

	healthInterval time.Duration
}

// NewGRPCServer returns a server for address. Me is protected from the
// start; other methods accept anonymous callers.
func NewGRPCServer(address string, d Deps) *GRPCServer {
	s := &GRPCServer{
		address:   address,
		logger:    d.Logger.With("module", "grpc_server"),
		users:     d.Users,
		keys:      d.APIKeys,
		limiter:   d.Limiter,
		sender:    d.Sender,
		pinger:    d.Pinger,
		health:    health.NewServer(),
		protected: map[string]bool{},
		unlimited: map[string]bool{
			healthpb.Health_Check_FullMethodName: true,
			healthpb.Health_Watch_FullMethodName: true,
		},
		scopes:         MethodScopes,
		healthInterval: 15 * time.Second,
	}
	s.Protect(pb.AuthService_Me_FullMethodName)
	return s
}

// Protect marks fully qualified methods as requiring a principal.
func (s *GRPCServer) Protect(fullMethods ...string) {
	for _, m := range fullMethods {
		s.protected[m] = true
	}
}

// interceptors run in order: credentials are read without touching storage,
// the caller is rate limited, and only then are API keys looked up.
func (s *GRPCServer) interceptors() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{s.identifyInterceptor, s.rateLimitInterceptor, s.authorizeInterceptor}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.interceptors()...))
	pb.RegisterAuthServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	s.checkHealth(ctx)
	go s.watchHealth(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	return srv.Serve(listen)
}
