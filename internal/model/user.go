package model

import "time"

// User is a participant known to the scheduler. Accounts are owned by the auth subsystem;
// the scheduler only keeps what it needs to reach people on Telegram.
type User struct {
	ID           string    `json:"id"`
	TelegramID   *int64    `json:"telegram_id"` // nil - Telegram не привязан
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	LanguageCode string    `json:"language_code"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName returns the name used in notifications.
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
