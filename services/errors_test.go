package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("connection reset")
	domainErr := NewDomainError(ErrorTypeTransport, "export request failed", baseErr)

	assert.Equal(t, ErrorTypeTransport, domainErr.Type)
	assert.Equal(t, "export request failed", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeDecode,
				Message: "malformed event line",
				Err:     errors.New("unexpected end of JSON input"),
			},
			wantMsg: "decode: malformed event line (unexpected end of JSON input)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid date range",
			},
			wantMsg: "validation: invalid date range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewDomainError(ErrorTypeMissingField, "no event", nil),
			target: ErrMissingEventField,
			want:   true,
		},
		{
			name:   "wrapped same type",
			err:    fmt.Errorf("event 3: %w", NewDomainError(ErrorTypeTransport, "eof", nil)),
			target: ErrTransport,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrTransport,
			want:   false,
		},
		{
			name:   "not a domain error",
			err:    NewDomainError(ErrorTypeDecode, "bad line", nil),
			target: errors.New("regular error"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeMissingField, "missing field", nil)

	err.WithDetail("line", 4).WithDetail("field", "event")

	assert.Equal(t, 4, err.Details["line"])
	assert.Equal(t, "event", err.Details["field"])
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"transport", WrapError(ErrorTypeTransport, "dial", errors.New("refused")), IsTransportError, true},
		{"wrapped transport", fmt.Errorf("fetch: %w", ErrTransport), IsTransportError, true},
		{"decode", ErrMalformedEvent, IsDecodeError, true},
		{"decode is not transport", ErrMalformedEvent, IsTransportError, false},
		{"validation", ErrInvalidDateRange, IsValidationError, true},
		{"external", WrapExternal("openai", errors.New("429")), IsExternalError, true},
		{"regular error", errors.New("regular"), IsExternalError, false},
		{"nil error", nil, IsTransportError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeAgent, "iteration limit", nil).WithDetail("iterations", 15)

	details := GetErrorDetails(fmt.Errorf("invoke: %w", err))
	require.NotNil(t, details)
	assert.Equal(t, 15, details["iterations"])

	assert.Nil(t, GetErrorDetails(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Equal(t, ErrorTypeInternal, GetErrorType(WrapInternal("boom", nil)))
}
