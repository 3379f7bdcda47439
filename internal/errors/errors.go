// Package errors provides structured error types for histdb.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryQueue      ErrorCategory = "QUEUE"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryBackup     ErrorCategory = "BACKUP"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeInvalidTimestamp = "INVALID_TIMESTAMP"

	// Queue codes
	CodeQueueFull   = "QUEUE_FULL"
	CodeQueueClosed = "QUEUE_CLOSED"
	CodeUnknownKind = "UNKNOWN_KIND"

	// Storage codes
	CodeOpenFailed          = "OPEN_FAILED"
	CodeWriteFailed         = "WRITE_FAILED"
	CodeResolveFailed       = "RESOLVE_FAILED"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"

	// Backup codes
	CodeSnapshotFailed = "SNAPSHOT_FAILED"
	CodeUploadFailed   = "UPLOAD_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a structured Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a structured Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. A full queue clears
// as workers drain it; a failed write or upload may succeed once transient
// contention passes. Malformed input and constraint violations never do.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryQueue && code == CodeQueueFull:
		return true
	case category == ErrCategoryStorage && code == CodeWriteFailed:
		return true
	case category == ErrCategoryBackup && code == CodeUploadFailed:
		return true
	default:
		return false
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsQueueFull reports whether the error is the queue's backpressure signal.
func IsQueueFull(err error) bool {
	return GetCategory(err) == ErrCategoryQueue && GetCode(err) == CodeQueueFull
}

// IsUnknownKind reports whether the error marks an unrecognized queue item.
func IsUnknownKind(err error) bool {
	return GetCategory(err) == ErrCategoryQueue && GetCode(err) == CodeUnknownKind
}

// IsStorage reports whether the error originated at the storage boundary.
func IsStorage(err error) bool {
	return GetCategory(err) == ErrCategoryStorage
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewQueueFullError(capacity int) *Error {
	return New(ErrCategoryQueue, CodeQueueFull,
		fmt.Sprintf("ingestion queue at capacity (%d)", capacity))
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
