package service

import (
	"strings"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
)

// ResolveStudent определяет, на какого студента оформляется запись.
// Студент всегда записывает только себя, администратор обязан указать студента,
// учителю запись запрещена, остальные роли не могут определить студента.
func ResolveStudent(actor model.Actor, studentID string) (string, error) {
	switch actor.Role {
	case model.RoleStudent:
		if strings.TrimSpace(actor.UserID) == "" {
			return "", model.ValidationError("ResolveStudent", "cannot determine student")
		}
		return actor.UserID, nil
	case model.RoleAdmin, model.RoleSuperAdmin:
		if strings.TrimSpace(studentID) == "" {
			return "", model.ValidationError("ResolveStudent", "admin must specify studentId")
		}
		return studentID, nil
	case model.RoleTeacher:
		return "", model.ForbiddenError("ResolveStudent", "teachers cannot schedule appointments for themselves")
	case model.RoleStaff:
		return "", model.ValidationError("ResolveStudent", "cannot determine student")
	default:
		return "", model.ValidationError("ResolveStudent", "cannot determine student")
	}
}

func canAccess(actor model.Actor, a *model.Appointment) bool {
	return actor.Role.IsAdmin() || actor.IsParticipant(a)
}

func canManageSession(actor model.Actor, a *model.Appointment) bool {
	return actor.Role.IsAdmin() || actor.IsTeacherOf(a)
}
