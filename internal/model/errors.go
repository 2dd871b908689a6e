package model

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrStateTransition = errors.New("invalid state transition")
)

// DomainError is a request-scoped failure carrying its kind and the operation that produced it.
type DomainError struct {
	Op      string // e.g. "NewAppointment", "Book"
	Kind    error
	Message string
}

func (e *DomainError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Kind
}

func ValidationError(op, message string) *DomainError {
	return &DomainError{Op: op, Kind: ErrValidation, Message: message}
}

func ForbiddenError(op, message string) *DomainError {
	return &DomainError{Op: op, Kind: ErrForbidden, Message: message}
}

func NotFoundError(op, message string) *DomainError {
	return &DomainError{Op: op, Kind: ErrNotFound, Message: message}
}

func ConflictError(op, message string) *DomainError {
	return &DomainError{Op: op, Kind: ErrConflict, Message: message}
}

// StateTransitionError reports an operation that is not allowed from the current status.
type StateTransitionError struct {
	Operation string
	Status    AppointmentStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s appointment in status %s", e.Operation, e.Status)
}

func (e *StateTransitionError) Is(target error) bool {
	return target == ErrStateTransition
}

// Message returns the human readable part of a domain error, or a generic text for anything else.
func Message(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	var se *StateTransitionError
	if errors.As(err, &se) {
		return se.Error()
	}
	return "internal error"
}
