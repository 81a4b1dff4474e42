package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the transport layer can map them without
// knowing individual sentinels.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindExhausted  Kind = "exhausted"
	KindDispatch   Kind = "dispatch"
	KindInternal   Kind = "internal"
)

// Error is a classified failure with a stable reason code.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNumberNotFound indicates the virtual number does not exist in the pool.
	ErrNumberNotFound = &Error{Kind: KindNotFound, Reason: "number_not_found", Message: "virtual number not found"}
	// ErrSessionNotFound indicates no live session matched.
	ErrSessionNotFound = &Error{Kind: KindNotFound, Reason: "session_not_found", Message: "session not found"}
	// ErrDuplicateNumber indicates the number is already in the pool.
	ErrDuplicateNumber = &Error{Kind: KindConflict, Reason: "duplicate_number", Message: "virtual number already exists"}
	// ErrNumberInUse indicates the number is reserved by a live session.
	ErrNumberInUse = &Error{Kind: KindConflict, Reason: "number_in_use", Message: "virtual number is reserved by an active session"}
	// ErrReservationConflict indicates another session bound the number first.
	ErrReservationConflict = &Error{Kind: KindConflict, Reason: "reservation_conflict", Message: "virtual number was reserved concurrently"}
	// ErrPoolExhausted indicates no unreserved numbers are left.
	ErrPoolExhausted = &Error{Kind: KindExhausted, Reason: "pool_exhausted", Message: "no virtual numbers available"}
	// ErrSameParticipant indicates both participants are the same identifier.
	ErrSameParticipant = &Error{Kind: KindValidation, Reason: "same_participant", Message: "participant_a and participant_b must differ"}
)

// NewValidationError builds a validation failure for malformed input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: "invalid_request", Message: fmt.Sprintf(format, args...)}
}

// DispatchError wraps a failure reported by the outbound SMS transport.
type DispatchError struct {
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s failed: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return KindDispatch
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code carried by err.
func ReasonOf(err error) string {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return "dispatch_failed"
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Reason
	}
	return "internal_error"
}
