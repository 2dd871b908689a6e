package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"go.uber.org/zap"
)

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

type UserService struct {
	userRepo UserRepository
	logger   *zap.Logger
}

func NewUserService(userRepo UserRepository, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// TelegramUserID is the scheduler user id given to people who first appear through the bot.
func TelegramUserID(telegramID int64) string {
	return "tg-" + strconv.FormatInt(telegramID, 10)
}

// RegisterUser регистрирует или обновляет пользователя, пришедшего из Telegram
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, firstName, lastName, languageCode string) (*model.User, error) {
	// Проверяем существует ли пользователь
	existingUser, err := s.userRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	// Если пользователь уже существует, обновляем данные профиля, роль не трогаем
	if existingUser != nil {
		existingUser.FirstName = firstName
		existingUser.LastName = lastName
		existingUser.LanguageCode = languageCode

		if err := s.userRepo.Upsert(ctx, existingUser); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}

		s.logger.Info("User updated",
			zap.String("user_id", existingUser.ID),
			zap.Int64("telegram_id", telegramID),
		)

		return existingUser, nil
	}

	// Создаём нового пользователя, по умолчанию студент
	user := &model.User{
		ID:           TelegramUserID(telegramID),
		TelegramID:   &telegramID,
		FirstName:    firstName,
		LastName:     lastName,
		LanguageCode: languageCode,
		Role:         model.RoleStudent,
	}

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.String("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
	)

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
