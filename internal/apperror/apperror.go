// Package apperror defines the domain error kinds shared by every layer.
//
// Repositories and services return *AppError values that wrap one of the
// sentinel errors below. Handlers never inspect messages; they ask
// errors.Is(err, apperror.ErrNotFound) and friends and pick a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable error message
	Field   string // optional: request field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AlreadyExists is a Conflict with a caller-supplied message, used when the
// clashing key is not an id (e.g. an email address).
func AlreadyExists(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller could not be identified: bad credentials,
// a missing session, or an expired or revoked token. Maps to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
