package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/farm-shop/internal/domain/models"
	security "github.com/linemk/farm-shop/internal/jwt-new"
	"github.com/linemk/farm-shop/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidRole = errors.New("role must be customer or farmer")

type AuthService struct {
	log      *slog.Logger
	userRepo storage.UserStorage
	tokenTTL time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:      log,
		userRepo: userRepo,
		tokenTTL: tokenTTL,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

// Register создаёт пользователя с ролью customer или farmer.
// Пароль хэшируется через bcrypt (соль добавляется автоматически).
// Занятый email возвращает storage.ErrUserExists.
func (a *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	const op = "auth.Register"
	email := strings.ToLower(strings.TrimSpace(in.Email))
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	if in.Role == "" {
		in.Role = models.RoleCustomer
	}
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	user, err := a.userRepo.CreateUser(ctx, &models.User{
		Email:     email,
		PassHash:  passHash,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			logger.Warn("user already exists")
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Error("failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create user: %w", op, err)
	}

	logger.Info("user registered", slog.Int64("userID", user.ID), slog.String("role", string(user.Role)))
	return user, nil
}

// Login сравнивает пароль с сохранённым хэшем и выдаёт JWT-токен с ролью пользователя
// (секрет для подписи берется из переменной окружения).
func (a *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	const op = "auth.Login"
	email = strings.ToLower(strings.TrimSpace(email))
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCreds)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCreds)
	}

	token, err := security.NewToken(ctx, user, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return token, nil
}
