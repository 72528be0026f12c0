/*
errors.go - Centralized error types for the generic primitives

PURPOSE:
  Sentinel errors shared by every store and by the timesheet core.
  Domain packages wrap these with context and callers test them with
  errors.Is().

ERROR CATEGORIES:
  1. Lookup errors - a record the caller asked for does not exist
  2. Input errors - malformed periods and months

SEE ALSO:
  - timesheet/errors.go: ReportingError and allocation failures
  - api/handlers.go: maps these to HTTP status codes
*/
package generic

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidMonth is returned for a month outside 1..12 or a non-positive year.
	ErrInvalidMonth = errors.New("invalid month")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) || errors.Is(err, ErrInvalidMonth)
}
