package handlers

import (
	"context"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/state"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/service"
	"go.uber.org/zap"
)

const (
	// Сколько ближайших записей показывать в /appointments
	upcomingLimit = 10
	// Насколько вперёд смотрит /appointments
	upcomingWindow = 30 * 24 * time.Hour
)

type UserService interface {
	RegisterUser(ctx context.Context, telegramID int64, firstName, lastName, languageCode string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

// AppointmentService is implemented by *service.SchedulingService.
type AppointmentService interface {
	ListForActor(ctx context.Context, actor model.Actor, req service.ListRequest) ([]*model.Appointment, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*model.Appointment, error)
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService  UserService
	appointments AppointmentService
	stateManager *state.Manager
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService UserService,
	appointments AppointmentService,
	stateManager *state.Manager,
	loc *time.Location,
	logger *zap.Logger,
) *Handlers {
	if loc == nil {
		loc = time.UTC
	}
	return &Handlers{
		userService:  userService,
		appointments: appointments,
		stateManager: stateManager,
		loc:          loc,
		now:          time.Now,
		logger:       logger,
	}
}
