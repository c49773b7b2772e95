package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeTransport    ErrorType = "transport"
	ErrorTypeDecode       ErrorType = "decode"
	ErrorTypeMissingField ErrorType = "missing_field"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeStorage      ErrorType = "storage"
	ErrorTypeDatabase     ErrorType = "database"
	ErrorTypeAgent        ErrorType = "agent"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Domain errors match on type only.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Export fetch
	ErrTransport      = NewDomainError(ErrorTypeTransport, "export request failed", nil)
	ErrMalformedEvent = NewDomainError(ErrorTypeDecode, "malformed event line", nil)

	// Projection
	ErrMissingEventField = NewDomainError(ErrorTypeMissingField, "event is missing the \"event\" field", nil)

	// Validation
	ErrInvalidDateRange = NewDomainError(ErrorTypeValidation, "invalid date range", nil)

	// Output
	ErrUploadFailed = NewDomainError(ErrorTypeStorage, "failed to upload output", nil)

	// Database
	ErrUnsupportedDatabase = NewDomainError(ErrorTypeDatabase, "unsupported database URL", nil)
	ErrDatabaseError       = NewDomainError(ErrorTypeDatabase, "database error", nil)

	// Agent
	ErrAgentIterationLimit = NewDomainError(ErrorTypeAgent, "agent stopped due to iteration limit", nil)
	ErrUnknownTool         = NewDomainError(ErrorTypeAgent, "unknown tool", nil)
)

// Error type checking helper functions

// IsTransportError checks if an error is a transport error
func IsTransportError(err error) bool {
	return GetErrorType(err) == ErrorTypeTransport
}

// IsDecodeError checks if an error is a decode error
func IsDecodeError(err error) bool {
	return GetErrorType(err) == ErrorTypeDecode
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
