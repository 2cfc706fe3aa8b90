package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/storage"
)

var ErrInvalidProfile = errors.New("first name and last name are required")

type ProfileInput struct {
	FirstName string
	LastName  string
	Address   string
}

// ProfileService отдаёт и меняет профиль текущего пользователя
type ProfileService interface {
	GetProfile(ctx context.Context, actor models.Actor) (*models.User, error)
	UpdateProfile(ctx context.Context, actor models.Actor, in ProfileInput) (*models.User, error)
}

type profileService struct {
	log   *slog.Logger
	users storage.UserStorage
}

func NewProfileService(log *slog.Logger, users storage.UserStorage) ProfileService {
	return &profileService{log: log, users: users}
}

func (s *profileService) GetProfile(ctx context.Context, actor models.Actor) (*models.User, error) {
	const op = "service.ProfileService.GetProfile"

	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			s.log.Error("failed to get user", slog.String("op", op), slog.Any("error", err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// UpdateProfile сохраняет имя, фамилию и адрес. Имя и фамилия обязательны, адрес может быть пустым.
func (s *profileService) UpdateProfile(ctx context.Context, actor models.Actor, in ProfileInput) (*models.User, error) {
	const op = "service.ProfileService.UpdateProfile"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.ID))

	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return nil, ErrInvalidProfile
	}

	user, err := s.users.UpdateProfile(ctx, actor.ID, firstName, lastName, strings.TrimSpace(in.Address))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Error("failed to update profile", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update profile: %w", op, err)
	}

	logger.Info("profile updated")
	return user, nil
}
