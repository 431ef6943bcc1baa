package core

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed request or result: mixed streaming
// flags in a batch, a bad row width, or a variable query with the wrong
// columns. Total and Streaming are set for mixed batches only.
type ValidationError struct {
	Message   string
	Total     int
	Streaming int
}

func (e *ValidationError) Error() string {
	if e.Total > 0 {
		return fmt.Sprintf("validation error: %s (total=%d, streaming=%d)", e.Message, e.Total, e.Streaming)
	}
	return "validation error: " + e.Message
}

// SchemaViolationError is returned when a frame receives a schema other
// than the one it was registered with, or one without a time field.
type SchemaViolationError struct {
	RefID   string
	Message string
}

func (e *SchemaViolationError) Error() string {
	if e.RefID == "" {
		return "schema violation: " + e.Message
	}
	return fmt.Sprintf("schema violation for %s: %s", e.RefID, e.Message)
}

// BackendError wraps a failure reported by the query backend.
type BackendError struct {
	RefID string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend query %s failed: %v", e.RefID, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// IsSchemaViolation checks if an error is a SchemaViolationError.
func IsSchemaViolation(err error) bool {
	var schemaError *SchemaViolationError
	return errors.As(err, &schemaError)
}

// IsBackendError checks if an error is a BackendError.
func IsBackendError(err error) bool {
	var backendError *BackendError
	return errors.As(err, &backendError)
}
