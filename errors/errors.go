package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
	ErrTransientNetwork = fmt.Errorf("transient network error")
	ErrNotFound         = fmt.Errorf("not found")
	ErrAccessDenied     = fmt.Errorf("access denied")
	ErrConflict         = fmt.Errorf("conflict")
	ErrInvalidRoom      = fmt.Errorf("a room needs at least two distinct members")
	ErrInvalidMessage   = fmt.Errorf("invalid message")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrNotActive        = fmt.Errorf("no active room")
	ErrUnsupported      = fmt.Errorf("operation not supported")
)

// ConflictError is returned when a room already exists for the same member set.
// It carries the identifier of the existing room so callers can redirect into it.
type ConflictError struct {
	RoomID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("room already exists for these members: %s", e.RoomID)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }

// Retryable reports whether the caller may try the same operation again.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

// Terminal reports whether the error ends the current room navigation.
func Terminal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccessDenied)
}
