// LOCATION: internal/errors/errors.go
//
// This file provides:
// - SNMP error-status codes returned by the responder
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToStatus mapping
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// SNMP error-status codes (RFC 3416) - carried in GetResponse PDUs
// ============================================================================

const (
	StatusNoError     uint8 = 0
	StatusTooBig      uint8 = 1
	StatusNoSuchName  uint8 = 2
	StatusReadOnly    uint8 = 4
	StatusGenErr      uint8 = 5
	StatusNotWritable uint8 = 17
)

// StatusName returns a human-readable name for an error status.
func StatusName(status uint8) string {
	switch status {
	case StatusNoError:
		return "noError"
	case StatusTooBig:
		return "tooBig"
	case StatusNoSuchName:
		return "noSuchName"
	case StatusReadOnly:
		return "readOnly"
	case StatusGenErr:
		return "genErr"
	case StatusNotWritable:
		return "notWritable"
	default:
		return fmt.Sprintf("status(%d)", status)
	}
}

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Validation errors
	ErrInvalidOID    = errors.New("invalid OID")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidType   = errors.New("invalid statistic type")
	ErrDuplicateName = errors.New("duplicate statistic name")

	// Query errors
	ErrUnavailable = errors.New("data unavailable")
	ErrReadOnly    = errors.New("read-only")

	// Update discard reasons
	ErrInsufficientData = errors.New("insufficient data")
	ErrMalformedUpdate  = errors.New("malformed update")
	ErrUnknownStatistic = errors.New("unknown statistic")
	ErrEmptyUpdate      = errors.New("empty update")

	// Transport errors
	ErrConnectionFailed     = errors.New("connection failed")
	ErrSourceClosed         = errors.New("source closed")
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrAlreadyStarted       = errors.New("already started")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidOID) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrDuplicateName)
}

// IsDiscard returns true if err means an update was dropped without
// touching the index. The pipeline keeps running after these.
func IsDiscard(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrMalformedUpdate) ||
		errors.Is(err, ErrUnknownStatistic) ||
		errors.Is(err, ErrEmptyUpdate)
}

// IsFatal returns true if err ends the feed subscriber.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrSourceClosed) ||
		errors.Is(err, ErrUnsupportedTransport)
}

// ============================================================================
// Error to SNMP status mapping
// ============================================================================

// ErrorToStatus maps an error to the SNMP error status the responder sends.
// Everything that is not a known client-side condition becomes genErr so a
// partial or corrupted result is never returned.
func ErrorToStatus(err error) uint8 {
	switch {
	case err == nil:
		return StatusNoError
	case Is(err, ErrReadOnly):
		return StatusNotWritable
	default:
		return StatusGenErr
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
