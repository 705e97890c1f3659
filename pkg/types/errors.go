package types

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrEmptyIdentifier      = errors.New("identifier value cannot be empty")
	ErrInvalidIdentifier    = errors.New("invalid identifier type")
	ErrEmptyFactName        = errors.New("fact name cannot be empty")
	ErrEmptyFactType        = errors.New("fact type cannot be empty")
	ErrEmptyVerb            = errors.New("verb cannot be empty")
	ErrEmptyContent         = errors.New("source content cannot be empty")
	ErrEmptyTenant          = errors.New("tenant id cannot be empty")
	ErrEmptyEntityID        = errors.New("entity id cannot be empty")
	ErrConfidenceOutOfRange = errors.New("confidence must be in [0, 1]")
)

// Result-category sentinels. Expected absence is a distinct condition from
// backend failure; callers branch with errors.Is rather than string matching.
var (
	// ErrEntityNotFound is returned when an entity is absent from the graph.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrFactNotFound is returned when a fact is absent from the graph.
	ErrFactNotFound = errors.New("fact not found")
	// ErrValidation marks rejected input. Maps to a 400 at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks an unreachable backend or a malformed backend response.
	// Maps to a 500 at the boundary.
	ErrStorage = errors.New("storage failure")
	// ErrIdempotencyViolation marks a broken internal invariant, e.g. a freshly
	// persisted fact whose stored key does not match its computed key. Fatal,
	// never silently ignored.
	ErrIdempotencyViolation = errors.New("idempotency violation")
)

// StorageError wraps a backend failure with the operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage so errors.Is(err, ErrStorage) matches wrapped instances.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err as a StorageError for operation op.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// ValidationError wraps a validation failure with the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports ErrValidation so errors.Is(err, ErrValidation) matches wrapped instances.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError wraps err as a ValidationError for field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// IsNotFound reports whether err signals expected absence of an entity or fact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) || errors.Is(err, ErrFactNotFound)
}
