package server

import (
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/services"
	"context"
)

type AuthServer struct {
	authService services.IAuthService
}

// NewAuthServer creates a new gRPC server for authentication.
func NewAuthServer(authService services.IAuthService) *AuthServer {
	return &AuthServer{authService: authService}
}

// Register validates input, hashes the password and issues a token.
func (s *AuthServer) Register(_ context.Context, in *api.RegisterRequest) (*api.AuthResponse, error) {
	credentials, err := s.authService.Register(in.Email, in.Password, in.DisplayName, in.Avatar)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.AuthResponse{Token: string(credentials.Token), UserID: credentials.UserID}, nil
}

// Login verifies credentials and returns a session token.
func (s *AuthServer) Login(_ context.Context, in *api.LoginRequest) (*api.AuthResponse, error) {
	credentials, err := s.authService.Login(in.Email, in.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.AuthResponse{Token: string(credentials.Token), UserID: credentials.UserID}, nil
}
