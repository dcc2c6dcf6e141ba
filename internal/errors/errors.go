// Package errors provides a lightweight structured error type (NightlockError)
// for category-based classification across the daemon, IPC dispatcher and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a Nightlock error for classification
type ErrorCategory string

const (
	// User-facing input errors
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// State machine conflicts (operation not legal in current state)
	CategoryState ErrorCategory = "state"

	// Runtime and infrastructure errors
	CategoryIO       ErrorCategory = "io"
	CategoryProcess  ErrorCategory = "process"
	CategoryProtocol ErrorCategory = "protocol"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// NightlockError is a structured error with category, severity, and context
type NightlockError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for NightlockError
type ContextFields map[string]any

// Error implements the error interface
func (e *NightlockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *NightlockError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *NightlockError) WithContext(key string, value any) *NightlockError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new NightlockError
func New(category ErrorCategory, severity ErrorSeverity, message string) *NightlockError {
	return &NightlockError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new NightlockError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *NightlockError {
	return &NightlockError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if ne, ok := err.(*NightlockError); ok {
		return ne.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if not a NightlockError
func GetCategory(err error) ErrorCategory {
	if ne, ok := err.(*NightlockError); ok {
		return ne.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (malformed PIN, bad schedule)
func ValidationError(message string) *NightlockError {
	return &NightlockError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// AuthError creates a new authentication error (wrong PIN, locked out)
func AuthError(message string) *NightlockError {
	return &NightlockError{
		Category: CategoryAuth,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// StateError creates a new state-conflict error (operation not legal now)
func StateError(message string) *NightlockError {
	return &NightlockError{
		Category: CategoryState,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// IOError creates a new I/O error (store unreadable, backup missing)
func IOError(message string) *NightlockError {
	return &NightlockError{
		Category: CategoryIO,
		Severity: SeverityError,
		Message:  message,
	}
}

// ProcessError creates a new process error (blocker launch failed)
func ProcessError(message string) *NightlockError {
	return &NightlockError{
		Category: CategoryProcess,
		Severity: SeverityError,
		Message:  message,
	}
}

// ProtocolError creates a new protocol error (malformed IPC request)
func ProtocolError(message string) *NightlockError {
	return &NightlockError{
		Category: CategoryProtocol,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// WrapIO wraps an existing error as an I/O error
func WrapIO(err error, message string) *NightlockError {
	return Wrap(err, CategoryIO, SeverityError, message)
}

// WrapProcess wraps an existing error as a process error
func WrapProcess(err error, message string) *NightlockError {
	return Wrap(err, CategoryProcess, SeverityError, message)
}
