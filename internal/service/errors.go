package service

import "errors"

// Kind classifies a failure for callers.  Handlers map kinds to transport
// status codes; nothing else should branch on the concrete error.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindForbidden    Kind = "FORBIDDEN"
	KindInvalidState Kind = "INVALID_STATE"
	KindInternal     Kind = "INTERNAL"
)

// Error is a caller-visible precondition failure.  Code is stable and
// machine readable, Message is meant for people.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrTrainingNotFound   = &Error{KindNotFound, "TRAINING_NOT_FOUND", "training not found"}
	ErrEnrollmentNotFound = &Error{KindNotFound, "ENROLLMENT_NOT_FOUND", "enrollment not found"}
	ErrDebtNotFound       = &Error{KindNotFound, "DEBT_NOT_FOUND", "debt not found"}

	ErrAlreadyEnrolled = &Error{KindConflict, "ALREADY_ENROLLED", "already enrolled in this training"}
	ErrTrainingFull    = &Error{KindConflict, "TRAINING_FULL", "training is full"}

	ErrTooLateToBook   = &Error{KindForbidden, "TOO_LATE_TO_BOOK", "enrollment for this training is closed"}
	ErrTooLateToCancel = &Error{KindForbidden, "TOO_LATE_TO_CANCEL", "too late to cancel this enrollment"}
	ErrSuspended       = &Error{KindForbidden, "SUSPENDED", "you are suspended from booking"}
	ErrUnpaidDebt      = &Error{KindForbidden, "UNPAID_DEBT", "you have an unpaid debt"}

	ErrTrainingCancelled   = &Error{KindInvalidState, "TRAINING_CANCELLED", "training is cancelled"}
	ErrEnrollmentNotActive = &Error{KindInvalidState, "ENROLLMENT_NOT_ACTIVE", "enrollment is not active"}
)

// KindOf classifies err.  Anything that is not an *Error is Internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
