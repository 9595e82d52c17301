// Package errors provides domain-specific error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeConnectivity  = "CONNECTIVITY_ERROR"
	ErrCodeTransport     = "TRANSPORT_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewConfigurationError reports missing or unusable configuration, such as an
// empty webhook URL. No request is attempted for these.
func NewConfigurationError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConnectivityError reports a failed connectivity check against the
// webhook endpoint. Sends are blocked until re-validation succeeds.
func NewConnectivityError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeConnectivity,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewTransportError reports an outright HTTP failure (network, timeout)
// for a single send. It does not flip the controller into the errored state.
func NewTransportError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeTransport,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewUpstreamError reports a response-level failure: a non-2xx status with a
// body, or a 2xx response whose error field is set.
func NewUpstreamError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeUpstream,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, identifier string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    identifier,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeInternal,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsCode checks whether err is a domain error carrying the given code.
func IsCode(err error, code string) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == code
}

// IsConnectivity checks if the error is a connectivity error.
func IsConnectivity(err error) bool {
	return IsCode(err, ErrCodeConnectivity)
}

// IsConfiguration checks if the error is a configuration error.
func IsConfiguration(err error) bool {
	return IsCode(err, ErrCodeConfiguration)
}

// IsUpstream checks if the error is an upstream error.
func IsUpstream(err error) bool {
	return IsCode(err, ErrCodeUpstream)
}
