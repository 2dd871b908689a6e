package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the routing key of a domain event.
type EventType string

const (
	EventAppointmentCreated       EventType = "appointment.created"
	EventAppointmentStatusUpdated EventType = "appointment.status_updated"
	EventAppointmentRecording     EventType = "appointment.recording_added"
	EventAppointmentVitals        EventType = "appointment.vitals_recorded"
	EventAppointmentReminder      EventType = "appointment.reminder"
)

// Event is a fact about an appointment handed to external subscribers.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	AppointmentID string            `json:"appointment_id"`
	StudentID     string            `json:"student_id,omitempty"`
	TeacherID     string            `json:"teacher_id,omitempty"`
	ScheduledAt   time.Time         `json:"scheduled_at,omitempty"`
	OldStatus     AppointmentStatus `json:"old_status,omitempty"`
	NewStatus     AppointmentStatus `json:"new_status,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
}

// NewAppointmentEvent fills the common part of an event from the appointment.
func NewAppointmentEvent(t EventType, a *Appointment, userID string, now time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		OccurredAt:    now,
		AppointmentID: a.ID,
		StudentID:     a.StudentID,
		TeacherID:     a.TeacherID,
		ScheduledAt:   a.ScheduledAt,
		NewStatus:     a.Status,
		UserID:        userID,
	}
}

// NewStatusUpdatedEvent is emitted after a successful status change.
func NewStatusUpdatedEvent(a *Appointment, oldStatus AppointmentStatus, userID string, now time.Time) Event {
	e := NewAppointmentEvent(EventAppointmentStatusUpdated, a, userID, now)
	e.OldStatus = oldStatus
	return e
}
