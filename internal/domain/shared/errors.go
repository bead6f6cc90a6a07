// Package shared contains common domain types and errors used across all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "target", "curriculum"
	Op      string // Operation that failed, e.g., "Record", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Curriculum domain errors
var (
	ErrChapterNotFound  = NewDomainError("curriculum", "Find", ErrNotFound, "chapter not found")
	ErrInvalidDirection = NewDomainError("curriculum", "Validate", ErrInvalidInput, "invalid traversal direction")
	ErrInvalidVerse     = NewDomainError("curriculum", "Validate", ErrValueOutOfRange, "verse out of chapter bounds")
	ErrPositionNotFound = NewDomainError("curriculum", "FindPosition", ErrNotFound, "curriculum position not found")
)

// Progress domain errors
var (
	ErrEntryNotFound   = NewDomainError("progress", "Find", ErrNotFound, "progress entry not found")
	ErrInvalidCategory = NewDomainError("progress", "Validate", ErrInvalidInput, "invalid progress category")
	ErrInvalidQuality  = NewDomainError("progress", "Validate", ErrInvalidInput, "invalid quality rating")
	ErrInvalidRange    = NewDomainError("progress", "Validate", ErrInvalidInput, "invalid verse range")
)

// Target domain errors
var (
	ErrTargetNotFound = NewDomainError("target", "Find", ErrNotFound, "daily target not found")
	ErrEmptyTarget    = NewDomainError("target", "Validate", ErrInvalidInput, "at least one daily target must be defined")
	ErrNegativeTarget = NewDomainError("target", "Validate", ErrNegativeValue, "daily target cannot be negative")
)

// Halaqa domain errors
var (
	ErrHalaqaNotFound  = NewDomainError("halaqa", "Find", ErrNotFound, "halaqa not found")
	ErrStudentNotFound = NewDomainError("halaqa", "FindStudent", ErrNotFound, "student not found")
)

// Reporting errors
var (
	ErrHistoryRangeTooLarge = NewDomainError("achievement", "Validate", ErrValueOutOfRange, "date range exceeds the maximum allowed window")
	ErrInvalidDateRange     = NewDomainError("achievement", "Validate", ErrInvalidInput, "end date is before start date")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
