package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens with a secret loaded from configuration.
// It is the identity collaborator of the relay.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must hold at least 32 bytes, got %d", len(secret))
	}
	return &TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}, nil
}

// GenerateToken creates a signed JWT for a specific user.
func (t *TokenIssuer) GenerateToken(userID, displayName string, roles []string) (string, error) {
	now := t.now()
	claims := &CustomClaims{
		UserID:      userID,
		DisplayName: displayName,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (t *TokenIssuer) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (any, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Verify implements contract.IdentityVerifier.
func (t *TokenIssuer) Verify(_ context.Context, token string) (domain.Identity, error) {
	claims, err := t.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrInvalidCredentials, err)
	}
	return domain.Identity{
		UserID:      domain.UserID(claims.UserID),
		DisplayName: claims.DisplayName,
		Roles:       claims.Roles,
	}, nil
}
