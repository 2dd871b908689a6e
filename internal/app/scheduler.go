package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"go.uber.org/zap"
)

// UpcomingSource is implemented by *service.SchedulingService.
type UpcomingSource interface {
	UpcomingBetween(ctx context.Context, from, to time.Time) ([]*model.Appointment, error)
}

type EventPublisher interface {
	Publish(event model.Event)
}

// Scheduler периодически рассылает напоминания о ближайших занятиях
type Scheduler struct {
	source   UpcomingSource
	events   EventPublisher
	interval time.Duration
	lead     time.Duration
	now      func() time.Time
	logger   *zap.Logger

	// id записи -> время начала; чистится, когда занятие началось
	reminded map[string]time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(source UpcomingSource, events EventPublisher, interval, lead time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		source:   source,
		events:   events,
		interval: interval,
		lead:     lead,
		now:      time.Now,
		logger:   logger,
		reminded: make(map[string]time.Time),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновую задачу напоминаний
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting reminder scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("lead", s.lead),
	)

	go s.runReminderTask(ctx)
}

// Stop останавливает фоновую задачу и ждёт её завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping reminder scheduler")
		close(s.stopChan)
	})
	<-s.done
}

func (s *Scheduler) runReminderTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.sendReminders(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sendReminders(ctx)
		case <-s.stopChan:
			s.logger.Info("Reminder task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Reminder task cancelled")
			return
		}
	}
}

// sendReminders публикует appointment.reminder для записей, начинающихся в ближайшие lead
func (s *Scheduler) sendReminders(ctx context.Context) {
	now := s.now()

	for id, start := range s.reminded {
		if start.Before(now) {
			delete(s.reminded, id)
		}
	}

	upcoming, err := s.source.UpcomingBetween(ctx, now, now.Add(s.lead))
	if err != nil {
		s.logger.Error("Failed to get upcoming appointments", zap.Error(err))
		return
	}

	sent := 0
	for _, a := range upcoming {
		if _, ok := s.reminded[a.ID]; ok {
			continue
		}
		s.events.Publish(model.NewAppointmentEvent(model.EventAppointmentReminder, a, "", now))
		s.reminded[a.ID] = a.ScheduledAt
		sent++
	}

	if sent > 0 {
		s.logger.Info("Reminders sent", zap.Int("count", sent))
	}
}
