package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/Freeeeeet/telehealth_scheduler/internal/service")

// AppointmentRepository is the persistence collaborator. GetByID returns nil, nil when absent.
type AppointmentRepository interface {
	Create(ctx context.Context, a *model.Appointment) error
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	GetByStudentID(ctx context.Context, studentID string, f model.AppointmentFilter) ([]*model.Appointment, error)
	GetByTeacherID(ctx context.Context, teacherID string, f model.AppointmentFilter) ([]*model.Appointment, error)
	GetByDateRange(ctx context.Context, from, to time.Time, f model.AppointmentFilter) ([]*model.Appointment, error)
	Update(ctx context.Context, id string, patch model.AppointmentPatch) (*model.Appointment, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// EventPublisher hands events to subscribers without waiting for them.
type EventPublisher interface {
	Publish(event model.Event)
}

// Locker serializes bookings per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type SchedulingService struct {
	appointments AppointmentRepository
	events       EventPublisher
	locker       Locker
	now          func() time.Time
	logger       *zap.Logger
}

func NewSchedulingService(
	appointments AppointmentRepository,
	events EventPublisher,
	locker Locker,
	logger *zap.Logger,
) *SchedulingService {
	return &SchedulingService{
		appointments: appointments,
		events:       events,
		locker:       locker,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock подменяет источник текущего времени
func (s *SchedulingService) WithClock(now func() time.Time) *SchedulingService {
	s.now = now
	return s
}

// BookRequest describes a booking made by Actor. StudentID is only honoured for admins.
// Nil Duration books model.DefaultDuration minutes.
type BookRequest struct {
	Actor       model.Actor
	StudentID   string
	TeacherID   string
	ScheduledAt time.Time
	Duration    *int
	Reason      string
}

// Book создаёт запись, если учитель свободен в запрошенное время
func (s *SchedulingService) Book(ctx context.Context, req BookRequest) (*model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.Book")
	defer span.End()

	studentID, err := ResolveStudent(req.Actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	appointment, err := model.NewAppointment(model.AppointmentParams{
		StudentID:   studentID,
		TeacherID:   req.TeacherID,
		ScheduledAt: req.ScheduledAt,
		Duration:    req.Duration,
		Reason:      req.Reason,
	}, now)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("teacher_id", appointment.TeacherID),
		attribute.String("student_id", appointment.StudentID),
	)

	// Проверка занятости и вставка выполняются под блокировкой учителя
	unlock, err := s.locker.Lock(ctx, teacherLockKey(appointment.TeacherID))
	if err != nil {
		span.SetStatus(codes.Error, "lock")
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	defer unlock()

	conflicts, err := s.conflictsFor(ctx, appointment.TeacherID, appointment.Window())
	if err != nil {
		span.SetStatus(codes.Error, "availability")
		return nil, err
	}
	if len(conflicts) > 0 {
		s.logger.Info("Booking rejected: teacher busy",
			zap.String("teacher_id", appointment.TeacherID),
			zap.String("student_id", appointment.StudentID),
			zap.Time("scheduled_at", appointment.ScheduledAt),
			zap.Int("duration", appointment.Duration),
		)
		return nil, model.ConflictError("Book", "teacher is not available at the requested time")
	}

	err = s.appointments.Create(ctx, appointment)
	if err != nil {
		span.SetStatus(codes.Error, "create")
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info("Appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("student_id", appointment.StudentID),
		zap.String("teacher_id", appointment.TeacherID),
		zap.String("booked_by", req.Actor.UserID),
		zap.Time("scheduled_at", appointment.ScheduledAt),
		zap.Int("duration", appointment.Duration),
	)

	s.events.Publish(model.NewAppointmentEvent(model.EventAppointmentCreated, appointment, req.Actor.UserID, now))

	return appointment, nil
}

// UpdateStatusRequest asks for a state machine transition. Notes are used by COMPLETED.
type UpdateStatusRequest struct {
	Actor         model.Actor
	AppointmentID string
	Status        model.AppointmentStatus
	Notes         string
}

// UpdateStatus переводит запись в новый статус от имени участника или администратора
func (s *SchedulingService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.UpdateStatus")
	defer span.End()

	appointment, err := s.load(ctx, "UpdateStatus", req.AppointmentID)
	if err != nil {
		return nil, err
	}

	if !canAccess(req.Actor, appointment) {
		return nil, model.ForbiddenError("UpdateStatus", "no permission to update this appointment")
	}

	oldStatus := appointment.Status
	now := s.now()

	switch req.Status {
	case model.AppointmentStatusConfirmed:
		err = appointment.Confirm(now)
	case model.AppointmentStatusInProgress:
		err = appointment.Start(now)
	case model.AppointmentStatusCompleted:
		err = appointment.Complete(req.Notes, now)
	case model.AppointmentStatusCancelled:
		err = appointment.Cancel(now)
	case model.AppointmentStatusNoShow:
		// Студент не может отметить собственную неявку
		if !canManageSession(req.Actor, appointment) {
			return nil, model.ForbiddenError("UpdateStatus", "only the teacher or an admin can mark a no-show")
		}
		err = appointment.MarkAsNoShow(now)
	default:
		return nil, model.ValidationError("UpdateStatus", fmt.Sprintf("unsupported status %q", req.Status))
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.appointments.Update(ctx, appointment.ID, model.StatusPatch(appointment, oldStatus))
	if err != nil {
		span.SetStatus(codes.Error, "update")
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logger.Info("Appointment status updated",
		zap.String("appointment_id", updated.ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(updated.Status)),
		zap.String("user_id", req.Actor.UserID),
	)

	s.events.Publish(model.NewStatusUpdatedEvent(updated, oldStatus, req.Actor.UserID, now))

	return updated, nil
}

// Get возвращает запись участнику или администратору
func (s *SchedulingService) Get(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error) {
	appointment, err := s.load(ctx, "Get", id)
	if err != nil {
		return nil, err
	}

	if !canAccess(actor, appointment) {
		return nil, model.ForbiddenError("Get", "no permission to view this appointment")
	}

	return appointment, nil
}

// ListRequest selects whose appointments an admin wants to see. Students and teachers
// always get their own.
type ListRequest struct {
	TeacherID string
	StudentID string
	Filter    model.AppointmentFilter
}

// ListForActor получает записи, доступные пользователю
func (s *SchedulingService) ListForActor(ctx context.Context, actor model.Actor, req ListRequest) ([]*model.Appointment, error) {
	var (
		appointments []*model.Appointment
		err          error
	)

	switch actor.Role {
	case model.RoleStudent:
		appointments, err = s.appointments.GetByStudentID(ctx, actor.UserID, req.Filter)
	case model.RoleTeacher:
		appointments, err = s.appointments.GetByTeacherID(ctx, actor.UserID, req.Filter)
	case model.RoleAdmin, model.RoleSuperAdmin:
		switch {
		case req.TeacherID != "":
			appointments, err = s.appointments.GetByTeacherID(ctx, req.TeacherID, req.Filter)
		case req.StudentID != "":
			appointments, err = s.appointments.GetByStudentID(ctx, req.StudentID, req.Filter)
		case !req.Filter.From.IsZero() && !req.Filter.To.IsZero():
			appointments, err = s.appointments.GetByDateRange(ctx, req.Filter.From, req.Filter.To, req.Filter)
		default:
			return nil, model.ValidationError("ListForActor", "teacher_id, student_id or a date range is required")
		}
	case model.RoleStaff:
		return nil, model.ForbiddenError("ListForActor", "no permission to list appointments")
	default:
		return nil, model.ForbiddenError("ListForActor", "no permission to list appointments")
	}

	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return appointments, nil
}

// AttachRecording прикрепляет запись сеанса (учитель записи или администратор)
func (s *SchedulingService) AttachRecording(ctx context.Context, actor model.Actor, id, url string) (*model.Appointment, error) {
	appointment, err := s.load(ctx, "AttachRecording", id)
	if err != nil {
		return nil, err
	}

	if !canManageSession(actor, appointment) {
		return nil, model.ForbiddenError("AttachRecording", "only the teacher or an admin can attach recordings")
	}

	now := s.now()
	if err := appointment.AddRecording(url, now); err != nil {
		return nil, err
	}

	updated, err := s.appointments.Update(ctx, appointment.ID, model.AppointmentPatch{
		RecordingURL: &appointment.RecordingURL,
		UpdatedAt:    appointment.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("save recording: %w", err)
	}

	s.logger.Info("Recording attached",
		zap.String("appointment_id", updated.ID),
		zap.String("user_id", actor.UserID),
	)

	s.events.Publish(model.NewAppointmentEvent(model.EventAppointmentRecording, updated, actor.UserID, now))

	return updated, nil
}

// AttachVitalSigns сохраняет показатели пациента (учитель записи или администратор)
func (s *SchedulingService) AttachVitalSigns(ctx context.Context, actor model.Actor, id string, vitals map[string]any) (*model.Appointment, error) {
	if len(vitals) == 0 {
		return nil, model.ValidationError("AttachVitalSigns", "vital signs payload is empty")
	}

	appointment, err := s.load(ctx, "AttachVitalSigns", id)
	if err != nil {
		return nil, err
	}

	if !canManageSession(actor, appointment) {
		return nil, model.ForbiddenError("AttachVitalSigns", "only the teacher or an admin can record vital signs")
	}

	now := s.now()
	appointment.AddVitalSigns(vitals, now)

	updated, err := s.appointments.Update(ctx, appointment.ID, model.AppointmentPatch{
		VitalSigns: appointment.VitalSigns,
		UpdatedAt:  appointment.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("save vital signs: %w", err)
	}

	s.logger.Info("Vital signs recorded",
		zap.String("appointment_id", updated.ID),
		zap.String("user_id", actor.UserID),
		zap.Int("fields", len(vitals)),
	)

	s.events.Publish(model.NewAppointmentEvent(model.EventAppointmentVitals, updated, actor.UserID, now))

	return updated, nil
}

// Delete физически удаляет запись. Только для администраторов.
func (s *SchedulingService) Delete(ctx context.Context, actor model.Actor, id string) error {
	if !actor.Role.IsAdmin() {
		return model.ForbiddenError("Delete", "only admins can delete appointments")
	}

	deleted, err := s.appointments.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if !deleted {
		return model.NotFoundError("Delete", "appointment not found")
	}

	s.logger.Info("Appointment deleted",
		zap.String("appointment_id", id),
		zap.String("user_id", actor.UserID),
	)

	return nil
}

// UpcomingBetween получает активные записи, начинающиеся в [from, to)
func (s *SchedulingService) UpcomingBetween(ctx context.Context, from, to time.Time) ([]*model.Appointment, error) {
	appointments, err := s.appointments.GetByDateRange(ctx, from, to, model.ActiveFilter())
	if err != nil {
		return nil, fmt.Errorf("get upcoming appointments: %w", err)
	}
	return appointments, nil
}

func (s *SchedulingService) load(ctx context.Context, op, id string) (*model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.ValidationError(op, "appointment id is required")
	}

	appointment, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	if appointment == nil {
		return nil, model.NotFoundError(op, "appointment not found")
	}

	return appointment, nil
}

func teacherLockKey(teacherID string) string {
	return "appointments:teacher:" + teacherID
}
