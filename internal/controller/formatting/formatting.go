// Package formatting renders appointments for Telegram messages.
package formatting

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
)

// FormatDateTime форматирует дату и время
func FormatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

// FormatDuration форматирует длительность в минутах
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

// StatusDisplay представляет отображение статуса записи
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetStatusDisplay возвращает emoji и текст для статуса записи
func GetStatusDisplay(status model.AppointmentStatus) StatusDisplay {
	displays := map[model.AppointmentStatus]StatusDisplay{
		model.AppointmentStatusScheduled:  {"⏳", "Запланирована"},
		model.AppointmentStatusConfirmed:  {"✅", "Подтверждена"},
		model.AppointmentStatusInProgress: {"🎥", "Идёт"},
		model.AppointmentStatusCompleted:  {"✔️", "Завершена"},
		model.AppointmentStatusCancelled:  {"❌", "Отменена"},
		model.AppointmentStatusNoShow:     {"⚠️", "Неявка"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}

// FormatAppointmentLine - одна строка списка записей
func FormatAppointmentLine(a *model.Appointment, loc *time.Location) string {
	st := GetStatusDisplay(a.Status)
	return fmt.Sprintf("%s %s, %s (%s)",
		st.Emoji,
		FormatDateTime(a.ScheduledAt.In(loc)),
		FormatDuration(a.Duration),
		st.Text,
	)
}
