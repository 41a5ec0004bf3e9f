package checkin

import "errors"

// Terminal, user-facing outcomes. These are never retried automatically.
var (
	ErrRegistrationNotFound     = errors.New("registration not found")
	ErrRegistrationNotConfirmed = errors.New("registration is not confirmed")
	ErrInvalidAttendeeIndex     = errors.New("attendee index out of range")
	ErrAttendeeAlreadyCheckedIn = errors.New("attendee already checked in")
	ErrAllAlreadyCheckedIn      = errors.New("all attendees already checked in")
)

// Retry / availability outcomes.
var (
	// ErrConcurrentModification is surfaced only after the internal retries
	// are exhausted; it is safe for the caller to retry.
	ErrConcurrentModification = errors.New("concurrent modification, retry")
	// ErrStoreUnavailable is an I/O failure before any write; safe to retry
	// with backoff.
	ErrStoreUnavailable = errors.New("registration store unavailable")
	// ErrUnknownOutcome means the write may or may not have landed. The caller
	// must re-resolve the registration before retrying.
	ErrUnknownOutcome = errors.New("check-in outcome unknown, re-resolve before retrying")
)

// ErrorCode maps a check-in error to its wire error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRegistrationNotFound):
		return "RegistrationNotFound"
	case errors.Is(err, ErrRegistrationNotConfirmed):
		return "RegistrationNotConfirmed"
	case errors.Is(err, ErrInvalidAttendeeIndex):
		return "InvalidAttendeeIndex"
	case errors.Is(err, ErrAttendeeAlreadyCheckedIn):
		return "AttendeeAlreadyCheckedIn"
	case errors.Is(err, ErrAllAlreadyCheckedIn):
		return "AllAlreadyCheckedIn"
	case errors.Is(err, ErrConcurrentModification):
		return "ConcurrentModification"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrUnknownOutcome):
		return "UnknownOutcome"
	default:
		return "Internal"
	}
}
