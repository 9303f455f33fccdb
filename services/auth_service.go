//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Login(email, password string) (Credentials, error)
	Register(email, password, displayName, avatar string) (Credentials, error)
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	tokens         *auth.TokenIssuer
}

type Token string

// Credentials is what a successful login or registration hands back.
type Credentials struct {
	Token  Token
	UserID string
}

func NewAuthService(log *slog.Logger, repo repositories.IUserRepository, tokens *auth.TokenIssuer) IAuthService {
	return &AuthService{log: log, userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(email, password, displayName, avatar string) (Credentials, error) {
	valReq := auth.RegisterRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
		Avatar:      avatar,
	}

	// Business rules are checked before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		if errors.Is(err, errors.ErrInvalidPassword) {
			return Credentials{}, err
		}
		return Credentials{}, fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return Credentials{}, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(email, hashedPassword, displayName, avatar)
	if err != nil {
		return Credentials{}, err
	}
	s.log.Info("user registered", "user_id", userID)

	token, err := s.tokens.GenerateToken(userID, displayName, []string{"user"})
	if err != nil {
		return Credentials{}, errors.ErrTokenGeneration
	}
	return Credentials{Token: Token(token), UserID: userID}, nil
}

func (s *AuthService) Login(email, password string) (Credentials, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return Credentials{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Credentials{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.DisplayName, user.Roles)
	if err != nil {
		return Credentials{}, errors.ErrTokenGeneration
	}
	return Credentials{Token: Token(token), UserID: user.ID}, nil
}
