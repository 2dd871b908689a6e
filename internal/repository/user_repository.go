package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	*base.Repository
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(pool)}
}

// Upsert создаёт пользователя или обновляет его профиль
func (r *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, telegram_id, first_name, last_name, language_code, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			telegram_id = EXCLUDED.telegram_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			language_code = EXCLUDED.language_code,
			role = EXCLUDED.role
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		user.ID,
		user.TelegramID,
		user.FirstName,
		user.LastName,
		user.LanguageCode,
		string(user.Role),
	).Scan(&user.CreatedAt)

	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, telegram_id, first_name, last_name, language_code, role, created_at
		FROM users
		WHERE id = $1
	`
	return r.getOne(ctx, "get user by id", query, id)
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `
		SELECT id, telegram_id, first_name, last_name, language_code, role, created_at
		FROM users
		WHERE telegram_id = $1
	`
	return r.getOne(ctx, "get user by telegram id", query, telegramID)
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg any) (*model.User, error) {
	var (
		user model.User
		role string
	)
	err := r.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.TelegramID,
		&user.FirstName,
		&user.LastName,
		&user.LanguageCode,
		&role,
		&user.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.Role = model.Role(role)
	return &user, nil
}
