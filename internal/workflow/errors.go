package workflow

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine matches exactly one of these via errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrConfiguration     = errors.New("configuration error")
)

// Stable machine-readable codes.
const (
	CodeNotFound            = "not_found"
	CodeInvalidTransition   = "invalid_state_transition"
	CodeValidation          = "validation_error"
	CodeConflict            = "conflict"
	CodeDecisionAlreadyMade = "decision_already_made"
	CodeConfiguration       = "configuration_error"
	CodeInternal            = "internal_error"
)

// Error carries a kind, a stable code and a message safe to show to end users.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return newError(ErrNotFound, CodeNotFound, format, args...)
}

func Validationf(format string, args ...any) error {
	return newError(ErrValidation, CodeValidation, format, args...)
}

func Conflictf(format string, args ...any) error {
	return newError(ErrConflict, CodeConflict, format, args...)
}

func Configurationf(format string, args ...any) error {
	return newError(ErrConfiguration, CodeConfiguration, format, args...)
}

// InvalidTransition reports an action attempted from a status that does not permit it.
func InvalidTransition(action string, from Status) error {
	return newError(ErrInvalidTransition, CodeInvalidTransition, "cannot %s from status %q", action, from)
}

// DecisionAlreadyMade is a conflict with its own code so clients can tell it from a version race.
func DecisionAlreadyMade(approvalID string) error {
	return newError(ErrConflict, CodeDecisionAlreadyMade, "decision already made for approval %s", approvalID)
}

// CodeOf maps any error to a stable code. Unknown errors are internal.
func CodeOf(err error) string {
	var we *Error
	if errors.As(err, &we) && we.Code != "" {
		return we.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// PublicMessage never leaks storage details for internal errors.
func PublicMessage(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Message
	}
	if CodeOf(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
