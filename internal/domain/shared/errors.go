// Package shared defines the error vocabulary the layers agree on:
// kind sentinels for errors.Is checks, DomainError for attaching domain
// and operation context, and the few sentinels that cross layer
// boundaries. Nothing here imports anything outside the standard
// library.
package shared

import (
	"errors"
	"fmt"
)

// Kind sentinels. Every DomainError carries one of these, so callers
// can branch on the failure class without knowing the concrete error.
var (
	// Lookups and uniqueness.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Input that failed validation.
	ErrValidation      = errors.New("validation failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value is empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("malformed value")

	// Failures of a dependency rather than of this service.
	ErrExternalService    = errors.New("external service failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timed out")
	ErrRateLimited        = errors.New("rate limited")
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError carries the failure class plus where it happened.
type DomainError struct {
	// Domain is the owning area, "ledger" or "query" for example.
	Domain string

	// Op is the operation that failed, "Apply" or "GetHistory".
	Op string

	// Kind is the sentinel this error matches through errors.Is.
	Kind error

	// Message is the human-readable description.
	Message string

	// Err is the underlying cause, when there is one.
	Err error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Unwrap, falling back to the kind.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the target against both the kind and the cause, so a
// wrapped error stays matchable by either chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError builds a DomainError without an underlying cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError builds a DomainError around an existing cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CROSS-LAYER SENTINELS
// Most sentinels live next to their aggregate. These two are returned
// by one layer and matched by another, so they live here.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrDuplicateTxID reports a ledger transaction id that was already
	// applied. The postgres repository maps the unique violation to it.
	ErrDuplicateTxID = NewDomainError("ledger", "Apply", ErrAlreadyExists, "transaction id already applied")

	// ErrBroadcastEmpty rejects a broadcast with no message body.
	ErrBroadcastEmpty = NewDomainError("broadcast", "Validate", ErrEmptyValue, "broadcast message is empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// isAny reports whether err matches any of the targets.
func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err came from rejected input.
func IsValidation(err error) bool {
	return isAny(err,
		ErrValidation,
		ErrInvalidInput,
		ErrEmptyValue,
		ErrValueOutOfRange,
		ErrInvalidFormat,
	)
}

// IsExternalService reports whether err came from a dependency. These
// failures are worth retrying later; validation failures are not.
func IsExternalService(err error) bool {
	return isAny(err,
		ErrExternalService,
		ErrServiceUnavailable,
		ErrTimeout,
		ErrRateLimited,
	)
}
