package payroll

import (
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrRunNotFound is returned when a run ID does not exist for the tenant.
	ErrRunNotFound = errors.New("payroll run not found")

	// ErrItemNotFound is returned when an item ID does not exist for the tenant.
	ErrItemNotFound = errors.New("payroll item not found")

	// ErrRunFinalized is returned when a mutation targets a finalized run.
	ErrRunFinalized = errors.New("payroll run is finalized")

	// ErrInvalidRange is re-exported so callers need not import calendar.
	ErrInvalidRange = calendar.ErrInvalidRange
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing run or item.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) || errors.Is(err, ErrItemNotFound)
}

// IsConflict returns true if the request conflicts with the run's state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrRunFinalized)
}
