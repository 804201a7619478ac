// Package faceerrors provides sentinel and custom error types for the application.
package faceerrors

import "fmt"

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation (e.g. a mis-dimensioned embedding).
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrConflict is the sentinel for conflict errors (e.g. duplicate business key).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrDegenerateVector is the sentinel for zero-norm embedding vectors, which
// cannot be normalized and would produce NaN similarity scores.
// A degenerate vector is also a validation error: errors.Is(err, ErrValidation) holds.
var ErrDegenerateVector = &DegenerateVectorError{}

// DegenerateVectorError is a sentinel error for zero-norm vectors.
type DegenerateVectorError struct {
	Message string
}

// NewDegenerateVectorError creates a DegenerateVectorError with a custom message.
func NewDegenerateVectorError(message string) *DegenerateVectorError {
	return &DegenerateVectorError{Message: message}
}

// Error implements the error interface.
func (e *DegenerateVectorError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "degenerate (zero-norm) embedding vector"
}

// Is matches both DegenerateVectorError and ValidationError targets.
func (e *DegenerateVectorError) Is(target error) bool {
	switch target.(type) {
	case *DegenerateVectorError, *ValidationError:
		return true
	default:
		return false
	}
}

// DuplicateKind distinguishes the two rejection outcomes of the duplicate policy.
type DuplicateKind string

const (
	// DuplicateSamePerson means the candidate face matched an embedding already
	// owned by the identity it was declared under.
	DuplicateSamePerson DuplicateKind = "same_person"
	// DuplicateCrossIdentity means the candidate face matched an embedding
	// owned by a different identity.
	DuplicateCrossIdentity DuplicateKind = "cross_identity"
)

// ErrDuplicate is the sentinel for duplicate-policy rejections.
var ErrDuplicate = &DuplicateError{}

// DuplicateError reports that a candidate embedding matched an existing one
// above the duplicate threshold. It always carries the conflicting identity's
// name so the rejection is actionable; FrameIndex is set for batch enrollments.
type DuplicateError struct {
	Kind         DuplicateKind
	ConflictID   string
	ConflictName string
	Score        float64
	FrameIndex   int // -1 for single-embedding enrollments
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	switch e.Kind {
	case DuplicateSamePerson:
		return fmt.Sprintf("face already registered for %q (similarity %.1f)", e.ConflictName, e.Score)
	case DuplicateCrossIdentity:
		return fmt.Sprintf("face already registered under a different identity %q (similarity %.1f)", e.ConflictName, e.Score)
	default:
		return "duplicate face"
	}
}

// Is implements the error interface for error comparison.
func (e *DuplicateError) Is(target error) bool {
	_, ok := target.(*DuplicateError)

	return ok
}

// ErrCheckFailed is the sentinel for duplicate scans that could not complete.
// Enrollment fails closed: a scan failure denies the enrollment.
var ErrCheckFailed = &CheckFailedError{}

// CheckFailedError reports that the duplicate scan could not complete, e.g.
// because of a stored vector that cannot be decoded or a query timeout.
type CheckFailedError struct {
	Message string
}

// NewCheckFailedError creates a CheckFailedError with a custom message.
func NewCheckFailedError(message string) *CheckFailedError {
	return &CheckFailedError{Message: message}
}

// Error implements the error interface.
func (e *CheckFailedError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "duplicate check failed"
}

// Is implements the error interface for error comparison.
func (e *CheckFailedError) Is(target error) bool {
	_, ok := target.(*CheckFailedError)

	return ok
}
