package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ledger failure taxonomy. Every error returned by the
// stores and services wraps exactly one of these; branch with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

// LedgerError carries the failing operation alongside its kind.
type LedgerError struct {
	Kind    error  // one of the sentinels above
	Op      string // e.g. "process", "accounts.apply_delta"
	Message string
	Err     error // underlying cause, may be nil
}

func (e *LedgerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Is reports a match against the kind sentinel so callers never need the concrete type.
func (e *LedgerError) Is(target error) bool {
	return target == e.Kind
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func newError(kind error, op, format string, args ...any) *LedgerError {
	return &LedgerError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return newError(ErrNotFound, op, format, args...)
}

func Validation(op, format string, args ...any) error {
	return newError(ErrValidation, op, format, args...)
}

func Conflict(op, format string, args ...any) error {
	return newError(ErrConflict, op, format, args...)
}

func InvalidState(op, format string, args ...any) error {
	return newError(ErrInvalidState, op, format, args...)
}

func Unavailable(op, format string, args ...any) error {
	return newError(ErrUnavailable, op, format, args...)
}

// Wrap attaches a kind to a lower-level cause (driver error, context error).
func Wrap(kind error, op string, err error) error {
	return &LedgerError{Kind: kind, Op: op, Err: err}
}

// IsClientError returns true if the error is caused by the caller's input or
// by the current state of the records, not by the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState)
}

// IsRetryable returns true if the same call might succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
