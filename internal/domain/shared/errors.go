// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Ingestion errors
	ErrSchema = errors.New("schema error")
	ErrParse  = errors.New("parse error")

	// Storage errors
	ErrStorage = errors.New("storage error")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Concurrency errors
	ErrLocked = errors.New("resource locked")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "roster", "grade", "ingest"
	Op      string // Operation that failed, e.g., "Resolve", "Write"
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

// SchemaError reports a batch whose header lacks a required column.
func SchemaError(op, message string) *DomainError {
	return NewDomainError("ingest", op, ErrSchema, message)
}

// ParseError reports a row value that could not be converted.
func ParseError(op, message string, err error) *DomainError {
	return WrapError("ingest", op, ErrParse, message, err)
}

// StorageError wraps a failure of the underlying store.
func StorageError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStorage, "storage failure", err)
}

// ValidationError reports an empty or malformed required value.
func ValidationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// Roster domain errors
var (
	ErrIdentityNotFound   = NewDomainError("roster", "FindIdentity", ErrNotFound, "identity not found")
	ErrInstructorNotFound = NewDomainError("roster", "FindInstructor", ErrNotFound, "instructor not found")
	ErrLearnerNotFound    = NewDomainError("roster", "FindLearner", ErrNotFound, "learner not found")
	ErrSubjectNotFound    = NewDomainError("roster", "FindSubject", ErrNotFound, "subject not found")
	ErrHandleTaken        = NewDomainError("roster", "CreateIdentity", ErrAlreadyExists, "handle already taken")
	ErrLearnerCodeTaken   = NewDomainError("roster", "CreateLearner", ErrAlreadyExists, "external code already registered")
	ErrEmptyHandle        = NewDomainError("roster", "NormalizeHandle", ErrValidation, "display name normalises to an empty handle")
	ErrProtectedIdentity  = NewDomainError("roster", "DeleteIdentity", ErrForbidden, "protected identity cannot be deleted")
)

// Ingestion errors
var (
	ErrIngestionLocked = NewDomainError("ingest", "Lock", ErrLocked, "another ingestion is running")
	ErrNoSources       = NewDomainError("ingest", "Ingest", ErrInvalidInput, "no batch sources given")
)

// IsSchema checks if the error is a schema error.
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsParse checks if the error is a parse error.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsStorage checks if the error originates in the store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsForbidden checks if the operation was refused.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
