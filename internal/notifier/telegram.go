// Package notifier sends appointment notifications to participants over Telegram.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/formatting"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Sender is the part of *bot.Bot used for notifications.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type Telegram struct {
	sender Sender
	users  UserLookup
	loc    *time.Location
	logger *zap.Logger
}

// NewTelegram creates a notifier. Times in messages are rendered in loc (UTC when nil).
func NewTelegram(sender Sender, users UserLookup, loc *time.Location, logger *zap.Logger) *Telegram {
	if loc == nil {
		loc = time.UTC
	}
	return &Telegram{sender: sender, users: users, loc: loc, logger: logger}
}

// Handle is an events.Handler. Events without a message text are ignored.
func (t *Telegram) Handle(ctx context.Context, event model.Event) error {
	text := t.messageFor(event)
	if text == "" {
		return nil
	}

	var errs []error
	for _, userID := range []string{event.StudentID, event.TeacherID} {
		if err := t.notify(ctx, userID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// messageFor формирует текст уведомления для события
func (t *Telegram) messageFor(event model.Event) string {
	when := formatting.FormatDateTime(event.ScheduledAt.In(t.loc))

	switch event.Type {
	case model.EventAppointmentCreated:
		return fmt.Sprintf("📅 Новая запись на %s", when)
	case model.EventAppointmentReminder:
		return fmt.Sprintf("⏰ Напоминание: занятие начнётся %s", when)
	case model.EventAppointmentStatusUpdated:
		switch event.NewStatus {
		case model.AppointmentStatusCompleted:
			return fmt.Sprintf("✅ Занятие %s завершено", when)
		case model.AppointmentStatusCancelled:
			return fmt.Sprintf("❌ Запись на %s отменена", when)
		case model.AppointmentStatusNoShow:
			return fmt.Sprintf("⚠️ Запись на %s отмечена как неявка", when)
		}
	}
	return ""
}

func (t *Telegram) notify(ctx context.Context, userID, text string) error {
	if userID == "" {
		return nil
	}

	user, err := t.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user %s: %w", userID, err)
	}

	// Пользователь не привязал Telegram
	if user == nil || user.TelegramID == nil {
		t.logger.Debug("Notification skipped: telegram not linked", zap.String("user_id", userID))
		return nil
	}

	_, err = t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *user.TelegramID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message to %s: %w", userID, err)
	}

	t.logger.Info("Notification sent",
		zap.String("user_id", userID),
		zap.Int64("telegram_id", *user.TelegramID),
	)
	return nil
}
