package services

import (
	"errors"
	"fmt"

	"greendrake/realty/internal/db"
	"greendrake/realty/internal/store"
)

// ErrorKind classifies domain failures. Only KindStorageUnavailable is caused by the
// infrastructure; every other kind is a business outcome and is never retried.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindDuplicateInquiry    ErrorKind = "duplicate_inquiry"
	KindCommissionLocked    ErrorKind = "commission_locked"
	KindScheduleConflict    ErrorKind = "schedule_conflict"
	KindValidationFailure   ErrorKind = "validation_failure"
	KindPropertyUnavailable ErrorKind = "property_unavailable"
	KindStorageUnavailable  ErrorKind = "storage_unavailable"
)

// Sentinel errors, one per kind, for errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateInquiry    = errors.New("an active inquiry already exists for this client and property")
	ErrCommissionLocked    = errors.New("commission is locked after deposit payment")
	ErrScheduleConflict    = errors.New("schedule conflict")
	ErrValidationFailure   = errors.New("validation failure")
	ErrPropertyUnavailable = errors.New("property unavailable")
	ErrStorageUnavailable  = errors.New("storage unavailable, no changes were made")
)

var sentinels = map[ErrorKind]error{
	KindNotFound:            ErrNotFound,
	KindDuplicateInquiry:    ErrDuplicateInquiry,
	KindCommissionLocked:    ErrCommissionLocked,
	KindScheduleConflict:    ErrScheduleConflict,
	KindValidationFailure:   ErrValidationFailure,
	KindPropertyUnavailable: ErrPropertyUnavailable,
	KindStorageUnavailable:  ErrStorageUnavailable,
}

// DomainError wraps an underlying error with operation context and a kind.
type DomainError struct {
	Op     string
	Kind   ErrorKind
	Entity string // Optional: "property", "inquiry", "calendar_event"
	ID     string // Optional: ID of the entity
	Err    error
}

func (e *DomainError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Entity != "" {
		base += fmt.Sprintf(" (%s", e.Entity)
		if e.ID != "" {
			base += "=" + e.ID
		}
		base += ")"
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *DomainError) Is(target error) bool {
	return e != nil && sentinels[e.Kind] == target
}

// IsKind helps callers classify errors without depending on the store.
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

func newError(op string, kind ErrorKind, entity string, id fmt.Stringer, err error) *DomainError {
	de := &DomainError{Op: op, Kind: kind, Entity: entity, Err: err}
	if id != nil {
		de.ID = id.String()
	}
	return de
}

func validationError(op, format string, args ...interface{}) *DomainError {
	return &DomainError{Op: op, Kind: KindValidationFailure, Err: fmt.Errorf(format, args...)}
}

// storeError turns an error returned by the store into a domain error. Domain errors raised
// inside a transaction pass through untouched.
func storeError(op, entity string, id fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return newError(op, KindNotFound, entity, id, err)
	}
	if db.IsRetryableStoreError(err) {
		return newError(op, KindStorageUnavailable, entity, id, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
