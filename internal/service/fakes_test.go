package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
)

// memoryRepo mimics the Postgres repository: it stores copies and hands out copies.
type memoryRepo struct {
	mu     sync.Mutex
	seq    int
	items  map[string]model.Appointment
	err    error // returned by every call when set
	lastTF model.AppointmentFilter

	// beforeUpdate runs under the lock, just before a patch is applied.
	beforeUpdate func(items map[string]model.Appointment)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]model.Appointment)}
}

func (r *memoryRepo) Create(_ context.Context, a *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.seq++
	a.ID = fmt.Sprintf("appt-%d", r.seq)
	r.items[a.ID] = *a
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memoryRepo) GetByStudentID(_ context.Context, studentID string, f model.AppointmentFilter) ([]*model.Appointment, error) {
	return r.list(func(a model.Appointment) bool { return a.StudentID == studentID }, f)
}

func (r *memoryRepo) GetByTeacherID(_ context.Context, teacherID string, f model.AppointmentFilter) ([]*model.Appointment, error) {
	r.mu.Lock()
	r.lastTF = f
	r.mu.Unlock()
	return r.list(func(a model.Appointment) bool { return a.TeacherID == teacherID }, f)
}

func (r *memoryRepo) GetByDateRange(_ context.Context, from, to time.Time, f model.AppointmentFilter) ([]*model.Appointment, error) {
	f.From, f.To = from, to
	return r.list(func(model.Appointment) bool { return true }, f)
}

func (r *memoryRepo) Update(_ context.Context, id string, patch model.AppointmentPatch) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.items[id]
	if !ok {
		return nil, model.NotFoundError("UpdateAppointment", "appointment not found")
	}
	if r.beforeUpdate != nil {
		r.beforeUpdate(r.items)
		a = r.items[id]
	}
	if patch.ExpectedStatus != nil && a.Status != *patch.ExpectedStatus {
		return nil, model.StaleStatusError(a.Status)
	}
	patch.Apply(&a)
	r.items[id] = a
	return &a, nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.items[id]
	delete(r.items, id)
	return ok, nil
}

func (r *memoryRepo) list(match func(model.Appointment) bool, f model.AppointmentFilter) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*model.Appointment
	for _, a := range r.items {
		a := a
		if match(a) && f.Match(&a) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// put stores an appointment as-is, bypassing the booking rules.
func (r *memoryRepo) put(a model.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID] = a
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}
