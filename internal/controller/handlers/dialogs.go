package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/formatting"
	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/state"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleCancelAppointment обрабатывает команду /cancelappointment
func (h *Handlers) HandleCancelAppointment(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.send(ctx, b, update.Message.Chat.ID, h.cancelAppointmentText(ctx, update.Message.From.ID))
}

// HandleCancel обрабатывает команду /cancel - отмена текущего диалога
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.send(ctx, b, update.Message.Chat.ID, h.abortText(update.Message.From.ID))
}

// HandleTextMessage обрабатывает текстовые сообщения в зависимости от состояния пользователя
func (h *Handlers) HandleTextMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}

	// Игнорируем команды (они обрабатываются другими handlers)
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	reply, ok := h.textReply(ctx, update.Message.From.ID, update.Message.Text)
	if !ok {
		return
	}
	h.send(ctx, b, update.Message.Chat.ID, reply)
}

func (h *Handlers) cancelAppointmentText(ctx context.Context, telegramID int64) string {
	_, list, msg := h.upcoming(ctx, telegramID)
	if list == nil {
		return msg
	}

	ids := make([]string, 0, len(list))
	var sb strings.Builder
	sb.WriteString("Какую запись отменить? Отправьте номер.\n\n")
	for i, a := range list {
		ids = append(ids, a.ID)
		fmt.Fprintf(&sb, "%d. %s\n", i+1, formatting.FormatAppointmentLine(a, h.loc))
	}
	sb.WriteString("\n/cancel - передумать")

	h.stateManager.SetState(telegramID, state.StateChoosingAppointmentToCancel)
	h.stateManager.SetData(telegramID, state.KeyAppointmentIDs, ids)

	return sb.String()
}

func (h *Handlers) abortText(telegramID int64) string {
	if h.stateManager.GetState(telegramID) == state.StateNone {
		return "❌ Нет активных операций для отмены."
	}

	// Очищаем состояние
	h.stateManager.ClearState(telegramID)
	return "✅ Операция отменена.\n\nИспользуйте /help для просмотра доступных команд."
}

// textReply returns false when the message is not part of a dialog.
func (h *Handlers) textReply(ctx context.Context, telegramID int64, text string) (string, bool) {
	switch h.stateManager.GetState(telegramID) {
	case state.StateChoosingAppointmentToCancel:
		return h.handleCancelChoice(ctx, telegramID, text), true
	default:
		return "", false
	}
}

func (h *Handlers) handleCancelChoice(ctx context.Context, telegramID int64, text string) string {
	raw, _ := h.stateManager.GetData(telegramID, state.KeyAppointmentIDs)
	ids, _ := raw.([]string)

	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(ids) {
		return fmt.Sprintf("❌ Введите номер от 1 до %d или /cancel.", len(ids))
	}

	user, msg := h.requireUser(ctx, telegramID)
	if user == nil {
		h.stateManager.ClearState(telegramID)
		return msg
	}

	h.stateManager.ClearState(telegramID)

	a, err := h.appointments.UpdateStatus(ctx, service.UpdateStatusRequest{
		Actor:         actorOf(user),
		AppointmentID: ids[n-1],
		Status:        model.AppointmentStatusCancelled,
	})
	if err != nil {
		h.logger.Warn("Cancel from bot failed",
			zap.String("user_id", user.ID),
			zap.String("appointment_id", ids[n-1]),
			zap.Error(err),
		)
		return "❌ Не удалось отменить запись: " + model.Message(err)
	}

	return "✅ Запись отменена:\n" + formatting.FormatAppointmentLine(a, h.loc)
}
