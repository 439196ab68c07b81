// Package errors provides coded domain errors for the ledger core.
//
// Services return these at component boundaries so callers can branch on
// machine-readable codes without string matching. Stores return sentinel
// errors (pkg/platform/sentinel) and services translate them here.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for programmatic handling.
type Code string

const (
	// CodeValidation marks bad input rejected before any write. Never retried.
	CodeValidation Code = "validation"

	// CodeDuplicate marks an idempotency key that was already applied.
	// This is success-shaped: callers receive the prior result, not a failure.
	CodeDuplicate Code = "duplicate"

	// CodeConflictRetryable marks a unique-key race or lock-contention loss
	// at the storage layer. Safe to retry with the same idempotency key.
	CodeConflictRetryable Code = "conflict_retryable"

	// CodePolicyViolation marks PII detected in an analytics payload.
	CodePolicyViolation Code = "policy_violation"

	// CodeStorageFailure marks a storage fault that aborted the whole unit of
	// work. No partial state is retained, so re-issuing with the same
	// idempotency key is safe.
	CodeStorageFailure Code = "storage_failure"

	CodeNotFound Code = "not_found"
	CodeTimeout  Code = "timeout"
	CodeInternal Code = "internal"
)

// DomainError carries a code, a human-readable message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything in its chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when none.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may safely re-issue the operation
// with the same idempotency key.
func IsRetryable(err error) bool {
	return HasCode(err, CodeConflictRetryable) || HasCode(err, CodeStorageFailure) || HasCode(err, CodeTimeout)
}
