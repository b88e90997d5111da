package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrValidationFailed     = errors.New("validation failed")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrNotificationFailure  = errors.New("notification failure")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
)

// ErrDuplicateReference is returned by storage when a generated booking reference is already taken.
var ErrDuplicateReference = &Error{Kind: ErrConflict, Reason: "a booking with the same reference already exists"}

// Error pairs an error kind with a reason that can be shown to the end user as is.
// Cause, when set, is the underlying failure and is only used for logging.
type Error struct {
	Kind   error
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error() + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) error {
	return newError(ErrValidationFailed, format, args...)
}

func NotFound(resource, id string) error {
	return newError(ErrNotFound, "%s %s not found", resource, id)
}

func Forbidden(reason string) error {
	return newError(ErrForbidden, "%s", reason)
}

func Conflictf(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

// PersistenceFailure reports a failed or timed out storage call made by op.
func PersistenceFailure(op string, cause error) error {
	return &Error{
		Kind:   ErrPersistenceFailure,
		Reason: "the service is temporarily unavailable, please try again",
		Cause:  errors.Wrap(cause, op),
	}
}

// NotificationFailure reports an undelivered notification. It is logged, never returned to callers.
func NotificationFailure(kind NotificationKind, cause error) error {
	return &Error{
		Kind:   ErrNotificationFailure,
		Reason: "notification " + string(kind) + " was not delivered",
		Cause:  cause,
	}
}

func CapacityExceeded(available, requested int) error {
	if available <= 0 {
		return newError(ErrCapacityExceeded, "no seats left for this date")
	}
	return newError(ErrCapacityExceeded, "only %d seat(s) left for this date, %d requested", available, requested)
}

func InvalidTransition(from Status, action string) error {
	if from.IsTerminal() {
		return newError(ErrInvalidTransition, "booking is already %s, cannot %s", from, action)
	}
	return newError(ErrInvalidTransition, "cannot %s a booking in status %s", action, from)
}

// Reason returns the human-readable explanation of err. Infrastructure failures get a generic message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	switch {
	case errors.Is(err, ErrSerializationFailure):
		return "the booking was changed concurrently, please try again"
	case errors.Is(err, ErrPersistenceFailure):
		return "the service is temporarily unavailable, please try again"
	case errors.Is(err, ErrNotFound):
		return "not found"
	}
	return "something went wrong"
}

// Kind returns the sentinel kind of err, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{
		ErrValidationFailed, ErrCapacityExceeded, ErrInvalidTransition, ErrNotFound, ErrForbidden,
		ErrConflict, ErrSerializationFailure, ErrPersistenceFailure, ErrNotificationFailure,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
