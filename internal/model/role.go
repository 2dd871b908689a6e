package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of institute roles that can act on appointments.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleTeacher    Role = "TEACHER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleStaff      Role = "STAFF" // librarians, secretaries and other non-scheduling staff
)

// Roles lists every member of the enumeration.
var Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin, RoleStaff}

// ParseRole accepts any casing and rejects strings outside the enumeration.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin, RoleStaff:
		return r, nil
	default:
		return "", ValidationError("ParseRole", fmt.Sprintf("unknown role %q", s))
	}
}

// IsAdmin reports whether the role has administrative rights over appointments.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return true
	case RoleStudent, RoleTeacher, RoleStaff:
		return false
	default:
		return false
	}
}

// Actor is the authenticated user performing a request.
type Actor struct {
	UserID string
	Role   Role
}

// IsParticipant reports whether the actor is the student or the teacher of the appointment.
func (a Actor) IsParticipant(ap *Appointment) bool {
	return a.UserID != "" && (a.UserID == ap.StudentID || a.UserID == ap.TeacherID)
}

// IsTeacherOf reports whether the actor is the teacher party of the appointment.
func (a Actor) IsTeacherOf(ap *Appointment) bool {
	return a.UserID != "" && a.UserID == ap.TeacherID
}
