package model

import "time"

// AppointmentFilter narrows repository listings. Zero values mean "no restriction".
type AppointmentFilter struct {
	Statuses []AppointmentStatus
	From     time.Time // scheduled_at >= From
	To       time.Time // scheduled_at < To
	Limit    int
}

// ActiveFilter selects appointments that can block a slot.
func ActiveFilter() AppointmentFilter {
	return AppointmentFilter{Statuses: ActiveStatuses}
}

// Match applies the filter in memory.
func (f AppointmentFilter) Match(a *Appointment) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && a.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.ScheduledAt.Before(f.To) {
		return false
	}
	return true
}

// AppointmentPatch lists the mutable columns written by Update. Nil fields are left untouched.
// A non-nil ExpectedStatus makes Update fail with a StateTransitionError when the stored
// status has moved on since the appointment was read.
type AppointmentPatch struct {
	ExpectedStatus *AppointmentStatus
	Status         *AppointmentStatus
	Notes          *string
	RecordingURL   *string
	VitalSigns     map[string]any
	UpdatedAt      time.Time
}

// StatusPatch captures the fields changed by a transition of a from the status from.
func StatusPatch(a *Appointment, from AppointmentStatus) AppointmentPatch {
	status := a.Status
	notes := a.Notes
	return AppointmentPatch{
		ExpectedStatus: &from,
		Status:         &status,
		Notes:          &notes,
		UpdatedAt:      a.UpdatedAt,
	}
}

// StaleStatusError is returned by Update when ExpectedStatus no longer matches the stored status.
func StaleStatusError(current AppointmentStatus) *StateTransitionError {
	return &StateTransitionError{Operation: "update", Status: current}
}

// Apply writes the patch onto a.
func (p AppointmentPatch) Apply(a *Appointment) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.RecordingURL != nil {
		a.RecordingURL = *p.RecordingURL
	}
	if p.VitalSigns != nil {
		a.VitalSigns = p.VitalSigns
	}
	if !p.UpdatedAt.IsZero() {
		a.UpdatedAt = p.UpdatedAt
	}
}
