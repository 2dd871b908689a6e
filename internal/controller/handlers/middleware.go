package handlers

import (
	"context"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// requireUser возвращает пользователя или текст ошибки для ответа
func (h *Handlers) requireUser(ctx context.Context, telegramID int64) (*model.User, string) {
	user, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		h.logger.Error("Failed to get user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		return nil, "❌ Произошла ошибка. Попробуйте позже."
	}

	if user == nil {
		return nil, "❌ Пользователь не найден. Используйте /start для регистрации."
	}

	return user, ""
}

// send отправляет сообщение и логирует если не удалось
func (h *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
