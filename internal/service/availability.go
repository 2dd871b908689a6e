package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Overlaps reports whether two half-open windows intersect.
// Windows that only touch at a boundary do not overlap.
func Overlaps(a, b model.Window) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// FindConflicts returns the active appointments whose window intersects candidate.
func FindConflicts(candidate model.Window, existing []*model.Appointment) []*model.Appointment {
	var conflicts []*model.Appointment
	for _, a := range existing {
		// Отменённые, завершённые и неявки слот не занимают
		if !a.IsActive() {
			continue
		}
		if Overlaps(candidate, a.Window()) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts
}

// CheckAvailability проверяет, свободен ли учитель в окне [scheduledAt, scheduledAt+duration)
func (s *SchedulingService) CheckAvailability(ctx context.Context, teacherID string, scheduledAt time.Time, duration int) (bool, error) {
	ctx, span := tracer.Start(ctx, "scheduling.CheckAvailability")
	defer span.End()

	if strings.TrimSpace(teacherID) == "" {
		return false, model.ValidationError("CheckAvailability", "teacherId is required")
	}
	if scheduledAt.IsZero() {
		return false, model.ValidationError("CheckAvailability", "scheduledAt must be a valid timestamp")
	}
	if err := model.ValidateDuration("CheckAvailability", duration); err != nil {
		return false, err
	}

	conflicts, err := s.conflictsFor(ctx, teacherID, model.NewWindow(scheduledAt, duration))
	if err != nil {
		return false, err
	}

	span.SetAttributes(attribute.Int("conflicts", len(conflicts)))
	return len(conflicts) == 0, nil
}

func (s *SchedulingService) conflictsFor(ctx context.Context, teacherID string, candidate model.Window) ([]*model.Appointment, error) {
	existing, err := s.appointments.GetByTeacherID(ctx, teacherID, model.ActiveFilter())
	if err != nil {
		return nil, fmt.Errorf("get teacher appointments: %w", err)
	}

	conflicts := FindConflicts(candidate, existing)
	if len(conflicts) > 0 {
		s.logger.Debug("Teacher slot conflict",
			zap.String("teacher_id", teacherID),
			zap.Time("start", candidate.Start),
			zap.Time("end", candidate.End),
			zap.String("conflicting_id", conflicts[0].ID),
			zap.Int("conflicts", len(conflicts)),
		)
	}

	return conflicts, nil
}
