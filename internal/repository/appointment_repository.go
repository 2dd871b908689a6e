package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, student_id, teacher_id, scheduled_at, duration, status,
		reason, notes, recording_url, vital_signs, created_at, updated_at`

type AppointmentRepository struct {
	*base.Repository
}

func NewAppointmentRepository(pool *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{Repository: base.NewRepository(pool)}
}

// Create сохраняет новую запись и проставляет ID и временные метки
func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `
		INSERT INTO appointments (id, student_id, teacher_id, scheduled_at, duration, status,
			reason, notes, recording_url, vital_signs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		a.ID,
		a.StudentID,
		a.TeacherID,
		a.ScheduledAt,
		a.Duration,
		string(a.Status),
		a.Reason,
		a.Notes,
		a.RecordingURL,
		a.VitalSigns,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return model.ConflictError("CreateAppointment", "appointment already exists")
		}
		return fmt.Errorf("create appointment: %w", err)
	}

	return nil
}

// GetByID получает запись по ID, nil если не найдена
func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	a, err := scanAppointment(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get appointment by id: %w", err)
	}

	return a, nil
}

// GetByStudentID получает записи студента
func (r *AppointmentRepository) GetByStudentID(ctx context.Context, studentID string, f model.AppointmentFilter) ([]*model.Appointment, error) {
	where, args := filterClause("student_id = $1", []any{studentID}, f)
	return r.list(ctx, "get appointments by student", where, args, f.Limit)
}

// GetByTeacherID получает записи учителя; фильтр по статусам используется для проверки занятости
func (r *AppointmentRepository) GetByTeacherID(ctx context.Context, teacherID string, f model.AppointmentFilter) ([]*model.Appointment, error) {
	where, args := filterClause("teacher_id = $1", []any{teacherID}, f)
	return r.list(ctx, "get appointments by teacher", where, args, f.Limit)
}

// GetByDateRange получает записи, начинающиеся в [from, to)
func (r *AppointmentRepository) GetByDateRange(ctx context.Context, from, to time.Time, f model.AppointmentFilter) ([]*model.Appointment, error) {
	f.From, f.To = from, to
	where, args := filterClause("", nil, f)
	return r.list(ctx, "get appointments by date range", where, args, f.Limit)
}

// Update применяет патч и возвращает обновлённую запись
func (r *AppointmentRepository) Update(ctx context.Context, id string, patch model.AppointmentPatch) (*model.Appointment, error) {
	query, args, ok := updateQuery(id, patch)
	if !ok {
		return nil, model.ValidationError("UpdateAppointment", "empty patch")
	}

	a, err := scanAppointment(r.QueryRow(ctx, query, args...))
	if err == nil {
		return a, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	// Ни одной строки: записи нет или статус успели поменять
	if patch.ExpectedStatus != nil {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current != nil {
			return nil, model.StaleStatusError(current.Status)
		}
	}
	return nil, model.NotFoundError("UpdateAppointment", "appointment not found")
}

// updateQuery строит UPDATE с условием на ожидаемый статус, ok=false для пустого патча
func updateQuery(id string, patch model.AppointmentPatch) (string, []any, bool) {
	set, args := patchClause(patch)
	if len(set) == 0 {
		return "", nil, false
	}

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if patch.ExpectedStatus != nil {
		args = append(args, string(*patch.ExpectedStatus))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE appointments SET %s WHERE %s RETURNING %s`,
		strings.Join(set, ", "), where, appointmentColumns)
	return query, args, true
}

// Delete удаляет запись, false если её не было
func (r *AppointmentRepository) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	affected, err := r.ExecAffected(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}

	return affected > 0, nil
}

func (r *AppointmentRepository) list(ctx context.Context, op, where string, args []any, limit int) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY scheduled_at`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var appointments []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appointments, nil
}

// filterClause дописывает условия фильтра к base; плейсхолдеры продолжают нумерацию args
func filterClause(baseCond string, args []any, f model.AppointmentFilter) (string, []any) {
	var conds []string
	if baseCond != "" {
		conds = append(conds, baseCond)
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("scheduled_at < $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func patchClause(p model.AppointmentPatch) ([]string, []any) {
	var (
		set  []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.RecordingURL != nil {
		add("recording_url", *p.RecordingURL)
	}
	if p.VitalSigns != nil {
		add("vital_signs", p.VitalSigns)
	}
	if len(set) > 0 {
		updatedAt := p.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		add("updated_at", updatedAt)
	}

	return set, args
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		p        model.AppointmentParams
		duration int
		status   string
	)
	err := row.Scan(
		&p.ID,
		&p.StudentID,
		&p.TeacherID,
		&p.ScheduledAt,
		&duration,
		&status,
		&p.Reason,
		&p.Notes,
		&p.RecordingURL,
		&p.VitalSigns,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Duration = &duration
	p.Status = model.AppointmentStatus(status)

	// Сохранённая запись авторитетна: проверка "не в прошлом" пропускается
	return model.RestoreAppointment(p)
}
