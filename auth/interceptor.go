package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	DisplayNameKey contextKey = "display_name"
	RolesKey       contextKey = "roles"
)

// AuthInterceptor handles bearer token validation for incoming gRPC calls.
// Methods listed in publicMethods are let through untouched.
func AuthInterceptor(verifier contract.IdentityVerifier, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata is missing")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
		}

		// Expecting the standard "Bearer <token>" format
		token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
		identity, err := verifier.Verify(ctx, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(WithIdentity(ctx, identity), req)
	}
}

// WithIdentity injects the verified identity for downstream service layers.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, identity.UserID)
	ctx = context.WithValue(ctx, DisplayNameKey, identity.DisplayName)
	return context.WithValue(ctx, RolesKey, identity.Roles)
}

// UserIDFromContext returns the caller injected by AuthInterceptor.
func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok && userID != ""
}
