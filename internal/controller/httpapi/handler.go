// Package httpapi exposes the scheduling service over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Scheduler is implemented by *service.SchedulingService.
type Scheduler interface {
	Book(ctx context.Context, req service.BookRequest) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*model.Appointment, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.Appointment, error)
	ListForActor(ctx context.Context, actor model.Actor, req service.ListRequest) ([]*model.Appointment, error)
	AttachRecording(ctx context.Context, actor model.Actor, id, url string) (*model.Appointment, error)
	AttachVitalSigns(ctx context.Context, actor model.Actor, id string, vitals map[string]any) (*model.Appointment, error)
	Delete(ctx context.Context, actor model.Actor, id string) error
	CheckAvailability(ctx context.Context, teacherID string, scheduledAt time.Time, duration int) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	scheduler Scheduler
	db        Pinger
	logger    *zap.Logger
}

func NewHandler(scheduler Scheduler, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{scheduler: scheduler, db: db, logger: logger}
}

type appointmentResponse struct {
	*model.Appointment
	EndTime time.Time `json:"end_time"`
}

func toResponse(a *model.Appointment) appointmentResponse {
	return appointmentResponse{Appointment: a, EndTime: a.EndTime()}
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// POST /api/v1/appointments
func (h *Handler) Book(c *gin.Context) {
	var in struct {
		TeacherID   string    `json:"teacher_id"`
		StudentID   string    `json:"student_id"`
		ScheduledAt time.Time `json:"scheduled_at"` // RFC3339
		Duration    *int      `json:"duration"`
		Reason      string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	actor, _ := actorFrom(c)
	a, err := h.scheduler.Book(c.Request.Context(), service.BookRequest{
		Actor:       actor,
		StudentID:   in.StudentID,
		TeacherID:   in.TeacherID,
		ScheduledAt: in.ScheduledAt,
		Duration:    in.Duration,
		Reason:      in.Reason,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(a))
}

// GET /api/v1/appointments?teacher_id=&student_id=&from=&to=&status=A,B&limit=
func (h *Handler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	actor, _ := actorFrom(c)
	list, err := h.scheduler.ListForActor(c.Request.Context(), actor, service.ListRequest{
		TeacherID: c.Query("teacher_id"),
		StudentID: c.Query("student_id"),
		Filter:    filter,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]appointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"appointments": out})
}

// GET /api/v1/appointments/:id
func (h *Handler) Get(c *gin.Context) {
	actor, _ := actorFrom(c)
	a, err := h.scheduler.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// PATCH /api/v1/appointments/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	status, err := model.ParseAppointmentStatus(in.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	actor, _ := actorFrom(c)
	a, err := h.scheduler.UpdateStatus(c.Request.Context(), service.UpdateStatusRequest{
		Actor:         actor,
		AppointmentID: c.Param("id"),
		Status:        status,
		Notes:         in.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// POST /api/v1/appointments/:id/recording
func (h *Handler) AttachRecording(c *gin.Context) {
	var in struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	actor, _ := actorFrom(c)
	a, err := h.scheduler.AttachRecording(c.Request.Context(), actor, c.Param("id"), in.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// POST /api/v1/appointments/:id/vitals
func (h *Handler) AttachVitalSigns(c *gin.Context) {
	var vitals map[string]any
	if err := c.ShouldBindJSON(&vitals); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	actor, _ := actorFrom(c)
	a, err := h.scheduler.AttachVitalSigns(c.Request.Context(), actor, c.Param("id"), vitals)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// DELETE /api/v1/appointments/:id
func (h *Handler) Delete(c *gin.Context) {
	actor, _ := actorFrom(c)
	if err := h.scheduler.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/teachers/:id/availability?scheduled_at=RFC3339&duration=30
func (h *Handler) Availability(c *gin.Context) {
	scheduledAt, err := time.Parse(time.RFC3339, c.Query("scheduled_at"))
	if err != nil {
		badRequest(c, "scheduled_at must be an RFC3339 timestamp")
		return
	}

	duration := model.DefaultDuration
	if raw, ok := c.GetQuery("duration"); ok {
		duration, err = strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "duration must be an integer")
			return
		}
	}

	ok, err := h.scheduler.CheckAvailability(c.Request.Context(), c.Param("id"), scheduledAt, duration)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": ok})
}

func parseFilter(c *gin.Context) (model.AppointmentFilter, error) {
	var f model.AppointmentFilter

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := model.ParseAppointmentStatus(part)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}

	var err error
	if f.From, err = parseTimeQuery(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTimeQuery(c, "to"); err != nil {
		return f, err
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return f, model.ValidationError("List", "limit must be a non-negative integer")
		}
		f.Limit = limit
	}

	return f, nil
}

func parseTimeQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, model.ValidationError("List", name+" must be an RFC3339 timestamp")
	}
	return t, nil
}
