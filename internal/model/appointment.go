package model

import (
	"fmt"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "SCHEDULED"   // Создана
	AppointmentStatusConfirmed  AppointmentStatus = "CONFIRMED"   // Подтверждена
	AppointmentStatusInProgress AppointmentStatus = "IN_PROGRESS" // Идёт сеанс
	AppointmentStatusCompleted  AppointmentStatus = "COMPLETED"   // Завершена
	AppointmentStatusCancelled  AppointmentStatus = "CANCELLED"   // Отменена
	AppointmentStatusNoShow     AppointmentStatus = "NO_SHOW"     // Студент не пришёл
)

const (
	DefaultDuration = 30
	MinDuration     = 15
	MaxDuration     = 120

	// PastGrace допускаемое отставание начала от текущего времени при создании
	PastGrace = 5 * time.Minute
)

// ActiveStatuses are the statuses that occupy the teacher's time.
var ActiveStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusInProgress,
}

// ParseAppointmentStatus accepts any casing and rejects unknown values.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ValidationError("ParseAppointmentStatus", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) IsActive() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress:
		return true
	}
	return false
}

// IsTerminal reports statuses that have no outgoing transitions.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Appointment is a telehealth session between a student and a teacher.
type Appointment struct {
	ID           string            `json:"id"`
	StudentID    string            `json:"student_id"`
	TeacherID    string            `json:"teacher_id"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	Duration     int               `json:"duration"` // в минутах
	Status       AppointmentStatus `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	RecordingURL string            `json:"recording_url,omitempty"`
	VitalSigns   map[string]any    `json:"vital_signs,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// AppointmentParams are the inputs for building an Appointment.
// Nil Duration means DefaultDuration, empty Status means SCHEDULED.
type AppointmentParams struct {
	ID           string
	StudentID    string
	TeacherID    string
	ScheduledAt  time.Time
	Duration     *int
	Status       AppointmentStatus
	Reason       string
	Notes        string
	RecordingURL string
	VitalSigns   map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAppointment validates params for a new booking. ScheduledAt may lag now by at most PastGrace.
func NewAppointment(p AppointmentParams, now time.Time) (*Appointment, error) {
	a, err := buildAppointment("NewAppointment", p)
	if err != nil {
		return nil, err
	}
	if a.ScheduledAt.Before(now.Add(-PastGrace)) {
		return nil, ValidationError("NewAppointment", "scheduled time cannot be in the past")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	return a, nil
}

// ValidateDuration rejects session lengths outside [MinDuration, MaxDuration].
func ValidateDuration(op string, minutes int) error {
	if minutes < MinDuration || minutes > MaxDuration {
		return ValidationError(op, fmt.Sprintf("duration must be between %d and %d minutes", MinDuration, MaxDuration))
	}
	return nil
}

// RestoreAppointment rebuilds a persisted appointment. The stored start time is trusted,
// so the past check is skipped.
func RestoreAppointment(p AppointmentParams) (*Appointment, error) {
	return buildAppointment("RestoreAppointment", p)
}

func buildAppointment(op string, p AppointmentParams) (*Appointment, error) {
	if strings.TrimSpace(p.StudentID) == "" {
		return nil, ValidationError(op, "studentId is required")
	}
	if strings.TrimSpace(p.TeacherID) == "" {
		return nil, ValidationError(op, "teacherId is required")
	}
	if p.ScheduledAt.IsZero() {
		return nil, ValidationError(op, "scheduledAt must be a valid timestamp")
	}

	duration := DefaultDuration
	if p.Duration != nil {
		duration = *p.Duration
	}
	if err := ValidateDuration(op, duration); err != nil {
		return nil, err
	}

	status := p.Status
	if status == "" {
		status = AppointmentStatusScheduled
	}
	if !status.Valid() {
		return nil, ValidationError(op, fmt.Sprintf("invalid status %q", status))
	}

	return &Appointment{
		ID:           p.ID,
		StudentID:    p.StudentID,
		TeacherID:    p.TeacherID,
		ScheduledAt:  p.ScheduledAt,
		Duration:     duration,
		Status:       status,
		Reason:       p.Reason,
		Notes:        p.Notes,
		RecordingURL: p.RecordingURL,
		VitalSigns:   p.VitalSigns,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

// Confirm переводит SCHEDULED -> CONFIRMED
func (a *Appointment) Confirm(now time.Time) error {
	if a.Status != AppointmentStatusScheduled {
		return &StateTransitionError{Operation: "confirm", Status: a.Status}
	}
	a.setStatus(AppointmentStatusConfirmed, now)
	return nil
}

// Start открывает сеанс из SCHEDULED или CONFIRMED
func (a *Appointment) Start(now time.Time) error {
	if a.Status != AppointmentStatusScheduled && a.Status != AppointmentStatusConfirmed {
		return &StateTransitionError{Operation: "start", Status: a.Status}
	}
	a.setStatus(AppointmentStatusInProgress, now)
	return nil
}

// Complete закрывает идущий сеанс. Пустые notes не затирают существующие.
func (a *Appointment) Complete(notes string, now time.Time) error {
	if a.Status != AppointmentStatusInProgress {
		return &StateTransitionError{Operation: "complete", Status: a.Status}
	}
	if notes != "" {
		a.Notes = notes
	}
	a.setStatus(AppointmentStatusCompleted, now)
	return nil
}

// Cancel разрешён из любого статуса, кроме COMPLETED
func (a *Appointment) Cancel(now time.Time) error {
	if a.Status == AppointmentStatusCompleted {
		return &StateTransitionError{Operation: "cancel", Status: a.Status}
	}
	a.setStatus(AppointmentStatusCancelled, now)
	return nil
}

// MarkAsNoShow отмечает неявку для ещё не начатого сеанса
func (a *Appointment) MarkAsNoShow(now time.Time) error {
	if a.Status != AppointmentStatusScheduled && a.Status != AppointmentStatusConfirmed {
		return &StateTransitionError{Operation: "mark as no-show", Status: a.Status}
	}
	a.setStatus(AppointmentStatusNoShow, now)
	return nil
}

func (a *Appointment) setStatus(status AppointmentStatus, now time.Time) {
	a.Status = status
	a.UpdatedAt = now
}

// CanTransitionTo reports whether the state machine has an edge from the current status to target.
func (a *Appointment) CanTransitionTo(target AppointmentStatus) bool {
	switch target {
	case AppointmentStatusConfirmed:
		return a.Status == AppointmentStatusScheduled
	case AppointmentStatusInProgress, AppointmentStatusNoShow:
		return a.Status == AppointmentStatusScheduled || a.Status == AppointmentStatusConfirmed
	case AppointmentStatusCompleted:
		return a.Status == AppointmentStatusInProgress
	case AppointmentStatusCancelled:
		return a.Status != AppointmentStatusCompleted
	default:
		return false
	}
}

// AddRecording прикрепляет ссылку на запись сеанса
func (a *Appointment) AddRecording(url string, now time.Time) error {
	if strings.TrimSpace(url) == "" {
		return ValidationError("AddRecording", "recording url is required")
	}
	a.RecordingURL = url
	a.UpdatedAt = now
	return nil
}

// AddVitalSigns перезаписывает показатели, снятые во время сеанса
func (a *Appointment) AddVitalSigns(vitals map[string]any, now time.Time) {
	a.VitalSigns = vitals
	a.UpdatedAt = now
}

// EndTime is always derived from ScheduledAt and Duration.
func (a *Appointment) EndTime() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.Duration) * time.Minute)
}

func (a *Appointment) IsPast(now time.Time) bool {
	return a.EndTime().Before(now)
}

// IsToday compares calendar days in now's location.
func (a *Appointment) IsToday(now time.Time) bool {
	y1, m1, d1 := a.ScheduledAt.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (a *Appointment) IsActive() bool {
	return a.Status.IsActive()
}

// Window returns the half-open interval occupied by the appointment.
func (a *Appointment) Window() Window {
	return Window{Start: a.ScheduledAt, End: a.EndTime()}
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds the window of a session of duration minutes starting at start.
func NewWindow(start time.Time, duration int) Window {
	return Window{Start: start, End: start.Add(time.Duration(duration) * time.Minute)}
}
