// Package domain defines core types and errors shared across the rewriter
// and the schema provisioner.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ParseError indicates the SQL text was rejected by the PostgreSQL parser.
// Message carries the parser diagnostic verbatim; Position is the 1-based
// cursor position within the input, or 0 when the parser did not report one.
type ParseError struct {
	Message  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("%s (at position %d)", e.Message, e.Position)
	}
	return e.Message
}

// ProvisioningError indicates a schema object could not be ensured.
// Object names the failed object (e.g. "column public.users.__identity__").
type ProvisioningError struct {
	Object string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.Object, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrParse creates a ParseError carrying the parser diagnostic.
func ErrParse(message string, position int) *ParseError {
	return &ParseError{Message: message, Position: position}
}

// ErrProvisioning wraps err as a ProvisioningError for the named object.
func ErrProvisioning(object string, err error) *ProvisioningError {
	return &ProvisioningError{Object: object, Err: err}
}
