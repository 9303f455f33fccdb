package services_test

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/repositories"
	"chat-relay/services"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("a-test-secret-that-is-long-enough-123", 24*time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockIUserRepository(ctrl)
	issuer := newIssuer(t)
	svc := services.NewAuthService(slog.New(slog.DiscardHandler), mockRepo, issuer)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser(email, gomock.Not(password), "Tester", "https://cdn.example.com/t.png").
			Return("user-uuid", nil).
			Times(1)

		creds, err := svc.Register(email, password, "Tester", "https://cdn.example.com/t.png")

		req.NoError(err)
		req.Equal("user-uuid", creds.UserID)
		identity, err := issuer.Verify(context.Background(), string(creds.Token))
		req.NoError(err)
		req.EqualValues("user-uuid", identity.UserID)
		req.Equal("Tester", identity.DisplayName)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		creds, err := svc.Register("test@example.com", "simple", "Tester", "")

		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(creds.Token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)
		email := "duplicate@example.com"

		mockRepo.EXPECT().
			CreateUser(email, gomock.Any(), "Tester", "").
			Return("", errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(email, "ComplexPass123!", "Tester", "")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockIUserRepository(ctrl)
	issuer := newIssuer(t)
	svc := services.NewAuthService(slog.New(slog.DiscardHandler), mockRepo, issuer)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "Secret123456!"

		hashedPassword, err := auth.HashPassword(password)
		req.NoError(err)
		storedUser := repositories.User{
			ID:           "uuid-123",
			Email:        email,
			PasswordHash: hashedPassword,
			DisplayName:  "User",
			Roles:        []string{"user"},
		}
		mockRepo.EXPECT().GetUserByEmail(email).Return(storedUser, nil).Times(1)

		creds, err := svc.Login(email, password)

		req.NoError(err)
		req.Equal(storedUser.ID, creds.UserID)
		claims, err := issuer.ValidateToken(string(creds.Token))
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		hashedPassword, err := auth.HashPassword("CorrectPassword123!")
		req.NoError(err)
		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(repositories.User{Email: email, PasswordHash: hashedPassword}, nil).
			Times(1)

		_, err = svc.Login(email, "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().
			GetUserByEmail("unknown@example.com").
			Return(repositories.User{}, errors.ErrUserNotFound).
			Times(1)

		_, err := svc.Login("unknown@example.com", "anyPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
