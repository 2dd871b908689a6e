package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/formatting"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const helpText = "📚 Справка по командам:\n\n" +
	"/start - Привязать Telegram и получить уведомления\n" +
	"/appointments - Ближайшие записи\n" +
	"/cancelappointment - Отменить запись\n" +
	"/cancel - Прервать текущее действие\n" +
	"/help - Показать эту справку\n\n" +
	"Записаться на приём можно в приложении. Сюда будут приходить уведомления и напоминания."

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.send(ctx, b, update.Message.Chat.ID, h.startText(ctx, update.Message.From))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.send(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleAppointments обрабатывает команду /appointments
func (h *Handlers) HandleAppointments(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.send(ctx, b, update.Message.Chat.ID, h.appointmentsText(ctx, update.Message.From.ID))
}

func (h *Handlers) startText(ctx context.Context, from *models.User) string {
	// Регистрируем пользователя
	user, err := h.userService.RegisterUser(ctx, from.ID, from.FirstName, from.LastName, from.LanguageCode)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		return "❌ Произошла ошибка при регистрации. Попробуйте позже."
	}

	return fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Telegram привязан к вашему аккаунту (ID: %s).\n\n%s",
		user.DisplayName(),
		user.ID,
		helpText,
	)
}

func (h *Handlers) appointmentsText(ctx context.Context, telegramID int64) string {
	_, list, msg := h.upcoming(ctx, telegramID)
	if list == nil {
		return msg
	}

	var sb strings.Builder
	sb.WriteString("📅 Ближайшие записи:\n\n")
	for _, a := range list {
		sb.WriteString(formatting.FormatAppointmentLine(a, h.loc))
		sb.WriteString("\n")
	}
	return sb.String()
}

// upcoming возвращает ближайшие активные записи пользователя.
// Если показывать нечего, list == nil, а msg содержит ответ пользователю.
func (h *Handlers) upcoming(ctx context.Context, telegramID int64) (*model.User, []*model.Appointment, string) {
	user, msg := h.requireUser(ctx, telegramID)
	if user == nil {
		return nil, nil, msg
	}

	// Администратору без явного учителя или студента нужен закрытый диапазон дат
	now := h.now()
	list, err := h.appointments.ListForActor(ctx, actorOf(user), service.ListRequest{
		Filter: model.AppointmentFilter{
			Statuses: model.ActiveStatuses,
			From:     now,
			To:       now.Add(upcomingWindow),
			Limit:    upcomingLimit,
		},
	})
	if err != nil {
		h.logger.Error("Failed to list appointments",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return user, nil, "❌ Не удалось получить записи: " + model.Message(err)
	}

	if len(list) == 0 {
		return user, nil, "📭 У вас нет предстоящих записей."
	}

	return user, list, ""
}

func actorOf(user *model.User) model.Actor {
	return model.Actor{UserID: user.ID, Role: user.Role}
}
