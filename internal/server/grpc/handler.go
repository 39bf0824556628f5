package grpc

import (
	"context"

	pb "github.com/uhoapp/authkit/internal/proto"
	"github.com/uhoapp/authkit/internal/server/auth"
	"github.com/uhoapp/authkit/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	user, token, err := s.users.Register(ctx, req.GetEmail(), req.GetPassword())
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	if s.sender != nil {
		if err := s.sender.SendVerification(ctx, user.Email, token); err != nil {
			s.logger.Error(ctx, "failed to send verification email", "user_id", user.ID, "error", err)
		}
	}

	return &pb.RegisterResponse{
		UserId:        user.ID,
		Email:         user.Email,
		SchemaName:    user.SchemaName,
		EmailVerified: user.EmailVerified,
	}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.TokenPair, error) {
	pair, err := s.users.Login(ctx, req.GetEmail(), req.GetPassword())
	if err != nil {
		return nil, s.fail(ctx, "login", err)
	}
	return toTokenPair(pair), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *pb.RefreshRequest) (*pb.TokenPair, error) {
	pair, err := s.users.Refresh(ctx, req.GetRefreshToken())
	if err != nil {
		return nil, s.fail(ctx, "refresh", err)
	}
	return toTokenPair(pair), nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *pb.LogoutRequest) (*pb.LogoutResponse, error) {
	if err := s.users.Logout(ctx, req.GetRefreshToken()); err != nil {
		return nil, s.fail(ctx, "logout", err)
	}
	return &pb.LogoutResponse{}, nil
}

func (s *GRPCServer) Me(ctx context.Context, _ *pb.MeRequest) (*pb.MeResponse, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, status.Error(codes.Unauthenticated, "missing credentials")
	}

	user, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, s.fail(ctx, "me", err)
	}

	return &pb.MeResponse{
		UserId:        user.ID,
		Email:         user.Email,
		SchemaName:    user.SchemaName,
		EmailVerified: user.EmailVerified,
		AuthMethod:    string(p.Method),
		ApiKeyId:      p.APIKeyID,
	}, nil
}

func toTokenPair(p *services.TokenPair) *pb.TokenPair {
	return &pb.TokenPair{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, ExpiresIn: p.ExpiresIn}
}

// fail converts err to a status. Internal errors are logged since their
// detail never reaches the caller.
func (s *GRPCServer) fail(ctx context.Context, op string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, "request failed", "op", op, "error", err)
	}
	return st
}
