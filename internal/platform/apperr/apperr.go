// Package apperr defines the error kinds returned by the domain services.
//
// Callers distinguish kinds with errors.As (or the Is* helpers) and map them to
// their own outward responses; no kind is ever converted into another.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Entity kinds used in NotFound and Conflict errors.
const (
	KindPerson      = "Person"
	KindSupporter   = "Supporter"
	KindPatient     = "Patient"
	KindAppointment = "Appointment"
)

// ValidationError reports bad input or a broken business rule. It is always
// detected before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation returns a ValidationError with a formatted message.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	Key  interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Kind, e.Key)
}

func NotFound(kind string, key interface{}) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// ConflictError reports an optimistic-concurrency version mismatch. Actual is
// the version found in storage after the compare-and-swap missed, or -1 when
// the row disappeared in between.
type ConflictError struct {
	Kind     string
	ID       uuid.UUID
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently: expected version %d, current version %d",
		e.Kind, e.ID, e.Expected, e.Actual)
}

func Conflict(kind string, id uuid.UUID, expected, actual int64) error {
	return &ConflictError{Kind: kind, ID: id, Expected: expected, Actual: actual}
}

// StorageError wraps an I/O or transaction failure from the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError. Errors that already carry a domain kind
// are returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsStorage(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
