package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/lock"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	clockNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	at10     = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	student = model.Actor{UserID: "student-1", Role: model.RoleStudent}
	other   = model.Actor{UserID: "student-2", Role: model.RoleStudent}
	teacher = model.Actor{UserID: "teacher-1", Role: model.RoleTeacher}
	admin   = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
	staff   = model.Actor{UserID: "staff-1", Role: model.RoleStaff}
)

func setup(t *testing.T) (*SchedulingService, *memoryRepo, *recordingPublisher) {
	t.Helper()
	repo := newMemoryRepo()
	pub := &recordingPublisher{}
	svc := NewSchedulingService(repo, pub, lock.NewLocal(), zap.NewNop()).
		WithClock(func() time.Time { return clockNow })
	return svc, repo, pub
}

func minutes(d int) *int { return &d }

func book(t *testing.T, svc *SchedulingService, start time.Time, duration int) *model.Appointment {
	t.Helper()
	a, err := svc.Book(context.Background(), BookRequest{
		Actor:       student,
		TeacherID:   teacher.UserID,
		ScheduledAt: start,
		Duration:    minutes(duration),
	})
	require.NoError(t, err)
	return a
}

func TestOverlaps(t *testing.T) {
	existing := model.NewWindow(at10, 30)

	tests := []struct {
		name     string
		start    time.Time
		duration int
		overlap  bool
	}{
		{"starts when existing ends", at10.Add(30 * time.Minute), 30, false},
		{"starts inside existing", at10.Add(15 * time.Minute), 30, true},
		{"ends when existing starts", at10.Add(-time.Hour), 60, false},
		{"ends inside existing", at10.Add(-15 * time.Minute), 30, true},
		{"same window", at10, 30, true},
		{"contains existing", at10.Add(-15 * time.Minute), 60, true},
		{"inside existing", at10.Add(5 * time.Minute), 15, true},
		{"far later", at10.Add(3 * time.Hour), 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := model.NewWindow(tt.start, tt.duration)
			assert.Equal(t, tt.overlap, Overlaps(candidate, existing))
			assert.Equal(t, tt.overlap, Overlaps(existing, candidate), "predicate is symmetric")
		})
	}
}

func TestCheckAvailability_Examples(t *testing.T) {
	svc, _, _ := setup(t)
	book(t, svc, at10, 30)
	ctx := context.Background()

	cases := []struct {
		start     time.Time
		available bool
	}{
		{at10.Add(30 * time.Minute), true},
		{at10.Add(15 * time.Minute), false},
		{at10.Add(-time.Hour), true},
		{at10.Add(-15 * time.Minute), false},
	}

	for _, c := range cases {
		duration := 30
		if c.start.Equal(at10.Add(-time.Hour)) {
			duration = 60
		}
		ok, err := svc.CheckAvailability(ctx, teacher.UserID, c.start, duration)
		require.NoError(t, err)
		assert.Equal(t, c.available, ok, "candidate at %s", c.start.Format("15:04"))
	}

	ok, err := svc.CheckAvailability(ctx, "teacher-2", at10, 30)
	require.NoError(t, err)
	assert.True(t, ok, "other teachers are unaffected")
}

func TestCheckAvailability_InactiveNeverConflict(t *testing.T) {
	for _, status := range []model.AppointmentStatus{
		model.AppointmentStatusCancelled,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusNoShow,
	} {
		t.Run(string(status), func(t *testing.T) {
			svc, repo, _ := setup(t)
			repo.put(model.Appointment{
				ID: "old", StudentID: "s", TeacherID: teacher.UserID,
				ScheduledAt: at10, Duration: 120, Status: status,
			})

			for _, offset := range []time.Duration{-30 * time.Minute, 0, 45 * time.Minute, 90 * time.Minute} {
				ok, err := svc.CheckAvailability(context.Background(), teacher.UserID, at10.Add(offset), 60)
				require.NoError(t, err)
				assert.True(t, ok)
			}
		})
	}
}

func TestCheckAvailability_AsksRepositoryForActiveOnly(t *testing.T) {
	svc, repo, _ := setup(t)
	_, err := svc.CheckAvailability(context.Background(), teacher.UserID, at10, 30)
	require.NoError(t, err)
	assert.ElementsMatch(t, model.ActiveStatuses, repo.lastTF.Statuses)
}

func TestCheckAvailability_Validation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CheckAvailability(ctx, "", at10, 30)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.CheckAvailability(ctx, teacher.UserID, time.Time{}, 30)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.CheckAvailability(ctx, teacher.UserID, at10, 200)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.CheckAvailability(ctx, teacher.UserID, at10, 0)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestFindConflicts_SkipsInactive(t *testing.T) {
	existing := []*model.Appointment{
		{ID: "a", ScheduledAt: at10, Duration: 30, Status: model.AppointmentStatusCancelled},
		{ID: "b", ScheduledAt: at10, Duration: 30, Status: model.AppointmentStatusInProgress},
	}
	conflicts := FindConflicts(model.NewWindow(at10, 30), existing)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "b", conflicts[0].ID)
}

// Scenario A: second overlapping booking for the same teacher is rejected.
func TestBook_ConflictScenario(t *testing.T) {
	svc, _, pub := setup(t)

	first := book(t, svc, at10, 30)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, model.AppointmentStatusScheduled, first.Status)
	assert.Equal(t, student.UserID, first.StudentID)

	_, err := svc.Book(context.Background(), BookRequest{
		Actor:       other,
		TeacherID:   teacher.UserID,
		ScheduledAt: at10.Add(15 * time.Minute),
		Duration:    minutes(30),
	})
	require.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, "teacher is not available at the requested time", model.Message(err))

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAppointmentCreated, events[0].Type)
	assert.Equal(t, first.ID, events[0].AppointmentID)
}

func TestBook_BackToBackAllowed(t *testing.T) {
	svc, _, _ := setup(t)
	book(t, svc, at10, 30)
	next := book(t, svc, at10.Add(30*time.Minute), 30)
	assert.Equal(t, at10.Add(time.Hour), next.EndTime())
}

func TestBook_StudentCannotBookForOthers(t *testing.T) {
	svc, _, _ := setup(t)
	a, err := svc.Book(context.Background(), BookRequest{
		Actor:       student,
		StudentID:   "someone-else",
		TeacherID:   teacher.UserID,
		ScheduledAt: at10,
	})
	require.NoError(t, err)
	assert.Equal(t, student.UserID, a.StudentID)
	assert.Equal(t, model.DefaultDuration, a.Duration)
}

// Scenario C: admins must name the student.
func TestBook_AdminRequiresStudent(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Book(context.Background(), BookRequest{
		Actor: admin, TeacherID: teacher.UserID, ScheduledAt: at10,
	})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, "admin must specify studentId", model.Message(err))

	a, err := svc.Book(context.Background(), BookRequest{
		Actor: admin, StudentID: "student-9", TeacherID: teacher.UserID, ScheduledAt: at10,
	})
	require.NoError(t, err)
	assert.Equal(t, "student-9", a.StudentID)
}

// Scenario D: teachers cannot book at all.
func TestBook_TeacherForbidden(t *testing.T) {
	svc, repo, _ := setup(t)

	_, err := svc.Book(context.Background(), BookRequest{
		Actor: teacher, StudentID: "student-1", TeacherID: teacher.UserID, ScheduledAt: at10,
	})
	require.ErrorIs(t, err, model.ErrForbidden)
	assert.Empty(t, repo.items)
}

func TestBook_OtherRolesFailClosed(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Book(context.Background(), BookRequest{
		Actor: staff, StudentID: "student-1", TeacherID: teacher.UserID, ScheduledAt: at10,
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Book(context.Background(), BookRequest{
		Actor: model.Actor{UserID: "x", Role: "GUEST"}, TeacherID: teacher.UserID, ScheduledAt: at10,
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestBook_ValidationBeforeLookup(t *testing.T) {
	svc, repo, _ := setup(t)
	repo.err = errors.New("db down")

	_, err := svc.Book(context.Background(), BookRequest{
		Actor: student, TeacherID: teacher.UserID, ScheduledAt: clockNow.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Book(context.Background(), BookRequest{
		Actor: student, TeacherID: teacher.UserID, ScheduledAt: at10, Duration: minutes(5),
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestBook_ExplicitZeroDurationRejected(t *testing.T) {
	svc, repo, pub := setup(t)

	_, err := svc.Book(context.Background(), BookRequest{
		Actor: student, TeacherID: teacher.UserID, ScheduledAt: at10, Duration: minutes(0),
	})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, "duration must be between 15 and 120 minutes", model.Message(err))
	assert.Empty(t, repo.items)
	assert.Empty(t, pub.all())
}

func TestBook_RepositoryErrorWrapped(t *testing.T) {
	svc, repo, pub := setup(t)
	dbErr := errors.New("db down")
	repo.err = dbErr

	_, err := svc.Book(context.Background(), BookRequest{
		Actor: student, TeacherID: teacher.UserID, ScheduledAt: at10,
	})
	require.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "get teacher appointments")
	assert.Empty(t, pub.all())
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	svc, repo, _ := setup(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), BookRequest{
				Actor: student, TeacherID: teacher.UserID, ScheduledAt: at10,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, model.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, conflicts)
	assert.Len(t, repo.items, 1)
}

// Scenario B through the service.
func TestUpdateStatus_Lifecycle(t *testing.T) {
	svc, _, pub := setup(t)
	a := book(t, svc, at10, 30)
	ctx := context.Background()

	steps := []struct {
		actor  model.Actor
		status model.AppointmentStatus
	}{
		{teacher, model.AppointmentStatusConfirmed},
		{teacher, model.AppointmentStatusInProgress},
		{teacher, model.AppointmentStatusCompleted},
	}
	for _, step := range steps {
		updated, err := svc.UpdateStatus(ctx, UpdateStatusRequest{
			Actor: step.actor, AppointmentID: a.ID, Status: step.status, Notes: "done",
		})
		require.NoError(t, err)
		assert.Equal(t, step.status, updated.Status)
	}

	got, err := svc.Get(ctx, student, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Notes)

	_, err = svc.UpdateStatus(ctx, UpdateStatusRequest{
		Actor: teacher, AppointmentID: a.ID, Status: model.AppointmentStatusConfirmed,
	})
	assert.ErrorIs(t, err, model.ErrStateTransition)

	events := pub.all()
	require.Len(t, events, 4)
	last := events[3]
	assert.Equal(t, model.EventAppointmentStatusUpdated, last.Type)
	assert.Equal(t, model.AppointmentStatusInProgress, last.OldStatus)
	assert.Equal(t, model.AppointmentStatusCompleted, last.NewStatus)
	assert.Equal(t, teacher.UserID, last.UserID)
	assert.Equal(t, a.ID, last.AppointmentID)
}

func TestUpdateStatus_FailedTransitionNotPersisted(t *testing.T) {
	svc, repo, pub := setup(t)
	a := book(t, svc, at10, 30)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		Actor: student, AppointmentID: a.ID, Status: model.AppointmentStatusCompleted,
	})
	require.ErrorIs(t, err, model.ErrStateTransition)

	stored := repo.items[a.ID]
	assert.Equal(t, model.AppointmentStatusScheduled, stored.Status)
	assert.Len(t, pub.all(), 1, "only the booking event")
}

func TestUpdateStatus_StatusChangedConcurrently(t *testing.T) {
	svc, repo, pub := setup(t)
	a := book(t, svc, at10, 30)

	// Пока запрос шёл, учитель успел начать и завершить сеанс
	repo.beforeUpdate = func(items map[string]model.Appointment) {
		stored := items[a.ID]
		stored.Status = model.AppointmentStatusCompleted
		items[a.ID] = stored
	}

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		Actor: student, AppointmentID: a.ID, Status: model.AppointmentStatusCancelled,
	})
	require.ErrorIs(t, err, model.ErrStateTransition)
	assert.Equal(t, "cannot update appointment in status COMPLETED", model.Message(err))

	assert.Equal(t, model.AppointmentStatusCompleted, repo.items[a.ID].Status)
	assert.Len(t, pub.all(), 1, "only the booking event")
}

func TestUpdateStatus_Authorization(t *testing.T) {
	svc, _, _ := setup(t)
	a := book(t, svc, at10, 30)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: other, AppointmentID: a.ID, Status: model.AppointmentStatusCancelled})
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: staff, AppointmentID: a.ID, Status: model.AppointmentStatusCancelled})
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: student, AppointmentID: a.ID, Status: model.AppointmentStatusNoShow})
	assert.ErrorIs(t, err, model.ErrForbidden, "students cannot mark their own no-show")

	updated, err := svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: admin, AppointmentID: a.ID, Status: model.AppointmentStatusNoShow})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, updated.Status)
}

func TestUpdateStatus_StudentCanCancel(t *testing.T) {
	svc, _, _ := setup(t)
	a := book(t, svc, at10, 30)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		Actor: student, AppointmentID: a.ID, Status: model.AppointmentStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, updated.Status)
	assert.Equal(t, clockNow, updated.UpdatedAt)

	ok, err := svc.CheckAvailability(context.Background(), teacher.UserID, at10, 30)
	require.NoError(t, err)
	assert.True(t, ok, "cancelled appointment frees the slot")
}

func TestUpdateStatus_UnknownAndMissing(t *testing.T) {
	svc, _, _ := setup(t)
	a := book(t, svc, at10, 30)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: teacher, AppointmentID: a.ID, Status: model.AppointmentStatusScheduled})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: teacher, AppointmentID: a.ID, Status: "ARCHIVED"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.UpdateStatus(ctx, UpdateStatusRequest{Actor: teacher, AppointmentID: "missing", Status: model.AppointmentStatusConfirmed})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGet_Authorization(t *testing.T) {
	svc, _, _ := setup(t)
	a := book(t, svc, at10, 30)
	ctx := context.Background()

	for _, actor := range []model.Actor{student, teacher, admin} {
		_, err := svc.Get(ctx, actor, a.ID)
		assert.NoError(t, err, actor.UserID)
	}

	_, err := svc.Get(ctx, other, a.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.Get(ctx, admin, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestListForActor(t *testing.T) {
	svc, repo, _ := setup(t)
	book(t, svc, at10, 30)
	repo.put(model.Appointment{ID: "x", StudentID: "student-2", TeacherID: "teacher-2", ScheduledAt: at10, Duration: 30, Status: model.AppointmentStatusScheduled})
	ctx := context.Background()

	mine, err := svc.ListForActor(ctx, student, ListRequest{TeacherID: "teacher-2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, student.UserID, mine[0].StudentID)

	teaching, err := svc.ListForActor(ctx, teacher, ListRequest{})
	require.NoError(t, err)
	assert.Len(t, teaching, 1)

	byTeacher, err := svc.ListForActor(ctx, admin, ListRequest{TeacherID: "teacher-2"})
	require.NoError(t, err)
	require.Len(t, byTeacher, 1)
	assert.Equal(t, "x", byTeacher[0].ID)

	inRange, err := svc.ListForActor(ctx, admin, ListRequest{Filter: model.AppointmentFilter{From: at10, To: at10.Add(time.Hour)}})
	require.NoError(t, err)
	assert.Len(t, inRange, 2)

	_, err = svc.ListForActor(ctx, admin, ListRequest{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.ListForActor(ctx, staff, ListRequest{})
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestAttachRecordingAndVitals(t *testing.T) {
	svc, _, pub := setup(t)
	a := book(t, svc, at10, 30)
	ctx := context.Background()

	_, err := svc.AttachRecording(ctx, student, a.ID, "https://rec/1")
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = svc.AttachRecording(ctx, teacher, a.ID, "")
	assert.ErrorIs(t, err, model.ErrValidation)

	updated, err := svc.AttachRecording(ctx, teacher, a.ID, "https://rec/1")
	require.NoError(t, err)
	assert.Equal(t, "https://rec/1", updated.RecordingURL)

	_, err = svc.AttachVitalSigns(ctx, teacher, a.ID, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	updated, err = svc.AttachVitalSigns(ctx, admin, a.ID, map[string]any{"pulse": 70})
	require.NoError(t, err)
	assert.Equal(t, 70, updated.VitalSigns["pulse"])
	assert.Equal(t, "https://rec/1", updated.RecordingURL)

	types := []model.EventType{}
	for _, e := range pub.all() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []model.EventType{
		model.EventAppointmentCreated,
		model.EventAppointmentRecording,
		model.EventAppointmentVitals,
	}, types)
}

func TestDelete(t *testing.T) {
	svc, _, _ := setup(t)
	a := book(t, svc, at10, 30)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, teacher, a.ID), model.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, a.ID))
	assert.ErrorIs(t, svc.Delete(ctx, admin, a.ID), model.ErrNotFound)
}

func TestUpcomingBetween(t *testing.T) {
	svc, repo, _ := setup(t)
	book(t, svc, at10, 30)
	repo.put(model.Appointment{ID: "c", StudentID: "s", TeacherID: "t", ScheduledAt: at10, Duration: 30, Status: model.AppointmentStatusCancelled})

	upcoming, err := svc.UpcomingBetween(context.Background(), at10.Add(-time.Minute), at10.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, model.AppointmentStatusScheduled, upcoming[0].Status)
}

func TestResolveStudent(t *testing.T) {
	id, err := ResolveStudent(student, "ignored")
	require.NoError(t, err)
	assert.Equal(t, student.UserID, id)

	id, err = ResolveStudent(model.Actor{UserID: "root", Role: model.RoleSuperAdmin}, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)

	_, err = ResolveStudent(teacher, "s-1")
	assert.ErrorIs(t, err, model.ErrForbidden)
	assert.Equal(t, "teachers cannot schedule appointments for themselves", model.Message(err))

	_, err = ResolveStudent(model.Actor{Role: model.RoleStudent}, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}
