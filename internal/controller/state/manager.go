package state

import (
	"sync"
	"time"
)

// Manager управляет состояниями пользователей
type Manager struct {
	mu     sync.Mutex
	states map[int64]*UserData // telegramID -> UserData
	ttl    time.Duration
	now    func() time.Time
}

// NewManager создаёт новый менеджер состояний
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		states: make(map[int64]*UserData),
		ttl:    ttl,
		now:    time.Now,
	}
}

// GetState получает текущее состояние пользователя
func (sm *Manager) GetState(telegramID int64) UserState {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if userData := sm.get(telegramID); userData != nil {
		return userData.State
	}
	return StateNone
}

// SetState устанавливает состояние пользователя
func (sm *Manager) SetState(telegramID int64, state UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if state == StateNone {
		// Если состояние None, удаляем запись
		delete(sm.states, telegramID)
		return
	}

	userData := sm.get(telegramID)
	if userData == nil {
		userData = &UserData{Data: make(map[string]any)}
		sm.states[telegramID] = userData
	}
	userData.State = state
	userData.UpdatedAt = sm.now()
}

// GetData получает временные данные пользователя
func (sm *Manager) GetData(telegramID int64, key string) (any, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if userData := sm.get(telegramID); userData != nil {
		value, ok := userData.Data[key]
		return value, ok
	}
	return nil, false
}

// SetData устанавливает временные данные пользователя
func (sm *Manager) SetData(telegramID int64, key string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	userData := sm.get(telegramID)
	if userData == nil {
		// Создаём запись если её нет
		userData = &UserData{State: StateNone, Data: make(map[string]any)}
		sm.states[telegramID] = userData
	}
	userData.Data[key] = value
	userData.UpdatedAt = sm.now()
}

// ClearState очищает состояние и данные пользователя
func (sm *Manager) ClearState(telegramID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, telegramID)
}

// get возвращает данные пользователя, удаляя просроченный диалог. Вызывать под mu.
func (sm *Manager) get(telegramID int64) *UserData {
	userData, exists := sm.states[telegramID]
	if !exists {
		return nil
	}
	if sm.now().Sub(userData.UpdatedAt) > sm.ttl {
		delete(sm.states, telegramID)
		return nil
	}
	return userData
}
