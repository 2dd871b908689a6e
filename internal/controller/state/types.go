package state

import "time"

// UserState представляет текущее состояние пользователя в диалоге
type UserState string

const (
	StateNone UserState = "" // Нет активного состояния

	// Пользователь выбирает номер записи для отмены
	StateChoosingAppointmentToCancel UserState = "choosing_appointment_to_cancel"
)

// Ключи временных данных диалога
const (
	KeyAppointmentIDs = "appointment_ids"
)

// DefaultTTL - через сколько незавершённый диалог забывается
const DefaultTTL = 10 * time.Minute

// UserData хранит временные данные пользователя во время диалога
type UserData struct {
	State     UserState
	Data      map[string]any
	UpdatedAt time.Time
}
